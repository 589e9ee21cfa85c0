package risk

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/marketdata"
	"github.com/oiltrading/backoffice/internal/model"
)

// scenarioMatrix aligns the return histories of every product in the book on
// the dates all of them share. Products without history are dropped and
// reported.
func scenarioMatrix(b Book, returns map[string][]marketdata.Return) (products []string, rows [][]float64, warnings []string) {
	counts := make(map[time.Time]int)
	byProduct := make(map[string]map[time.Time]float64)
	for _, p := range b.Products {
		rs := returns[p]
		if len(rs) == 0 {
			warnings = append(warnings, fmt.Sprintf("no return history for %s: excluded from simulation", p))
			continue
		}
		products = append(products, p)
		m := make(map[time.Time]float64, len(rs))
		for _, r := range rs {
			m[r.Date] = r.Value
			counts[r.Date]++
		}
		byProduct[p] = m
	}

	var dates []time.Time
	for day, n := range counts {
		if n == len(products) {
			dates = append(dates, day)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	rows = make([][]float64, len(dates))
	for t, day := range dates {
		row := make([]float64, len(products))
		for i, p := range products {
			row[i] = byProduct[p][day]
		}
		rows[t] = row
	}
	return products, rows, warnings
}

// pnlPath revalues the book under each historical return row, oldest first.
func pnlPath(b Book, products []string, rows [][]float64) []float64 {
	w := make([]float64, len(products))
	for i, p := range products {
		w[i] = b.Exposure[p].InexactFloat64()
	}
	out := make([]float64, len(rows))
	for t, row := range rows {
		var pnl float64
		for i, r := range row {
			pnl += w[i] * r
		}
		out[t] = pnl
	}
	return out
}

// sampledRisks replaces each product's standalone VaR with the tail of its
// own P&L over the sample rows and returns their VaR95 sum. Products outside
// the sample carry no sampled risk.
func sampledRisks(b Book, products []string, rows [][]float64, base []model.ProductRisk) ([]model.ProductRisk, float64) {
	col := make(map[string]int, len(products))
	for i, p := range products {
		col[p] = i
	}
	out := make([]model.ProductRisk, len(base))
	series := make([]float64, len(rows))
	var undiversified float64
	for k, pr := range base {
		pr.VaR95, pr.VaR99 = decimal.Zero, decimal.Zero
		if i, ok := col[pr.ProductCode]; ok {
			w := b.Exposure[pr.ProductCode].InexactFloat64()
			for t, row := range rows {
				series[t] = w * row[i]
			}
			v95, _ := tail(series, 0.95)
			v99, _ := tail(series, 0.99)
			pr.VaR95, pr.VaR99 = money(v95), money(v99)
			undiversified += v95
		}
		out[k] = pr
	}
	return out, undiversified
}

// tail returns the VaR and expected shortfall of a P&L sample at confidence
// c, both as positive losses. The VaR is the sorted sample at index
// floor(n·(1-c)); the shortfall averages that observation and every worse one.
func tail(pnl []float64, c float64) (varLoss, shortfall float64) {
	if len(pnl) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), pnl...)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * (1 - c))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	var sum float64
	for _, v := range sorted[:idx+1] {
		sum += v
	}
	return max(0, -sorted[idx]), max(0, -sum/float64(idx+1))
}

// maxDrawdown is the largest peak-to-trough fall of the cumulative P&L path.
func maxDrawdown(pnl []float64) float64 {
	var cum, peak, dd float64
	for _, v := range pnl {
		cum += v
		if cum > peak {
			peak = cum
		}
		if peak-cum > dd {
			dd = peak - cum
		}
	}
	return dd
}
