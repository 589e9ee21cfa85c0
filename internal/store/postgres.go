package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oiltrading/backoffice/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values and quantities are stored as NUMERIC for exact
// decimal precision and read back through ::TEXT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const settlementColumns = `id, kind, contract_id, contract_number, product_code,
	document_number, document_type, document_date,
	actual_mt::TEXT, actual_bbl::TEXT, calc_mt::TEXT, calc_bbl::TEXT, density_factor::TEXT,
	benchmark_price::TEXT, benchmark_price_formula, benchmark_unit, price_currency,
	pricing_start_date, pricing_end_date, quotes_used,
	benchmark_amount::TEXT, adjustment_amount::TEXT, cargo_value::TEXT,
	total_charges::TEXT, total_settlement_amount::TEXT,
	settlement_currency, exchange_rate::TEXT, charge_rates,
	status, is_finalized, history,
	created_by, created_at, modified_by, modified_at, version`

func (s *PostgresStore) CreateSettlement(ctx context.Context, st *model.ContractSettlement) error {
	rates, history, err := settlementJSON(st)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO settlements (id, kind, contract_id, contract_number, product_code,
			document_number, document_type, document_date,
			actual_mt, actual_bbl, calc_mt, calc_bbl, density_factor,
			benchmark_price, benchmark_price_formula, benchmark_unit, price_currency,
			pricing_start_date, pricing_end_date, quotes_used,
			benchmark_amount, adjustment_amount, cargo_value, total_charges, total_settlement_amount,
			settlement_currency, exchange_rate, charge_rates,
			status, is_finalized, history,
			created_by, created_at, modified_by, modified_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			$9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13::NUMERIC,
			$14::NUMERIC, $15, $16, $17, $18, $19, $20,
			$21::NUMERIC, $22::NUMERIC, $23::NUMERIC, $24::NUMERIC, $25::NUMERIC,
			$26, $27::NUMERIC, $28::JSONB, $29, $30, $31::JSONB,
			$32, $33, $34, $35, 1)`,
		st.ID, st.Kind, st.ContractID, st.ContractNumber, st.ProductCode,
		st.DocumentNumber, st.DocumentType, st.DocumentDate,
		st.ActualQuantity.MT.String(), st.ActualQuantity.BBL.String(),
		st.CalculationQuantity.MT.String(), st.CalculationQuantity.BBL.String(),
		st.DensityFactor.String(),
		st.BenchmarkPrice.String(), st.BenchmarkPriceFormula, st.BenchmarkUnit, st.PriceCurrency,
		st.PricingStartDate, st.PricingEndDate, st.QuotesUsed,
		st.BenchmarkAmount.String(), st.AdjustmentAmount.String(), st.CargoValue.String(),
		st.TotalCharges.String(), st.TotalSettlementAmount.String(),
		st.SettlementCurrency, st.ExchangeRate.String(), rates,
		st.Status, st.IsFinalized, history,
		st.CreatedBy, st.CreatedAt, st.ModifiedBy, st.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement %s: %w", st.ID, err)
	}
	if err := insertCharges(ctx, tx, st); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	st.Version = 1
	return nil
}

func (s *PostgresStore) GetSettlement(ctx context.Context, id string) (*model.ContractSettlement, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id = $1`, id)
	st, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: settlement %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get settlement %s: %w", id, err)
	}

	charges, err := s.charges(ctx, id)
	if err != nil {
		return nil, err
	}
	st.Charges = charges
	return st, nil
}

func (s *PostgresStore) UpdateSettlement(ctx context.Context, st *model.ContractSettlement, expectedVersion int64) error {
	rates, history, err := settlementJSON(st)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE settlements SET
			contract_number = $3, product_code = $4,
			document_number = $5, document_type = $6, document_date = $7,
			actual_mt = $8::NUMERIC, actual_bbl = $9::NUMERIC,
			calc_mt = $10::NUMERIC, calc_bbl = $11::NUMERIC, density_factor = $12::NUMERIC,
			benchmark_price = $13::NUMERIC, benchmark_price_formula = $14, benchmark_unit = $15,
			price_currency = $16, pricing_start_date = $17, pricing_end_date = $18, quotes_used = $19,
			benchmark_amount = $20::NUMERIC, adjustment_amount = $21::NUMERIC, cargo_value = $22::NUMERIC,
			total_charges = $23::NUMERIC, total_settlement_amount = $24::NUMERIC,
			settlement_currency = $25, exchange_rate = $26::NUMERIC, charge_rates = $27::JSONB,
			status = $28, is_finalized = $29, history = $30::JSONB,
			modified_by = $31, modified_at = $32,
			version = version + 1
		 WHERE id = $1 AND version = $2`,
		st.ID, expectedVersion,
		st.ContractNumber, st.ProductCode,
		st.DocumentNumber, st.DocumentType, st.DocumentDate,
		st.ActualQuantity.MT.String(), st.ActualQuantity.BBL.String(),
		st.CalculationQuantity.MT.String(), st.CalculationQuantity.BBL.String(),
		st.DensityFactor.String(),
		st.BenchmarkPrice.String(), st.BenchmarkPriceFormula, st.BenchmarkUnit,
		st.PriceCurrency, st.PricingStartDate, st.PricingEndDate, st.QuotesUsed,
		st.BenchmarkAmount.String(), st.AdjustmentAmount.String(), st.CargoValue.String(),
		st.TotalCharges.String(), st.TotalSettlementAmount.String(),
		st.SettlementCurrency, st.ExchangeRate.String(), rates,
		st.Status, st.IsFinalized, history,
		st.ModifiedBy, st.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("update settlement %s: %w", st.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var current int64
		err := tx.QueryRow(ctx, `SELECT version FROM settlements WHERE id = $1`, st.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: settlement %s", ErrNotFound, st.ID)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: settlement %s at version %d, expected %d",
			ErrConcurrencyConflict, st.ID, current, expectedVersion)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM settlement_charges WHERE settlement_id = $1`, st.ID); err != nil {
		return fmt.Errorf("replace charges %s: %w", st.ID, err)
	}
	if err := insertCharges(ctx, tx, st); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	st.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) ListSettlementsByContract(ctx context.Context, contractID string) ([]model.ContractSettlement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+settlementColumns+` FROM settlements WHERE contract_id = $1 ORDER BY created_at, id`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.ContractSettlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		charges, err := s.charges(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Charges = charges
	}
	return result, nil
}

func (s *PostgresStore) UpsertContractLeg(ctx context.Context, l *model.ContractLeg) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contract_legs (contract_id, contract_number, kind, product_code, delivery_month,
			quantity, unit, density_factor, price, currency, counterparty, status, trade_date)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8::NUMERIC, $9::NUMERIC, $10, $11, $12, $13)
		 ON CONFLICT (contract_id) DO UPDATE SET
			contract_number = EXCLUDED.contract_number, kind = EXCLUDED.kind,
			product_code = EXCLUDED.product_code, delivery_month = EXCLUDED.delivery_month,
			quantity = EXCLUDED.quantity, unit = EXCLUDED.unit,
			density_factor = EXCLUDED.density_factor, price = EXCLUDED.price,
			currency = EXCLUDED.currency, counterparty = EXCLUDED.counterparty,
			status = EXCLUDED.status, trade_date = EXCLUDED.trade_date`,
		l.ContractID, l.ContractNumber, l.Kind, l.ProductCode, l.DeliveryMonth,
		l.Quantity.String(), l.Unit, l.DensityFactor.String(), l.Price.String(),
		l.Currency, l.Counterparty, l.Status, l.TradeDate,
	)
	return err
}

func (s *PostgresStore) ListActiveLegs(ctx context.Context, asOf time.Time) ([]model.ContractLeg, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT contract_id, contract_number, kind, product_code, delivery_month,
		        quantity::TEXT, unit, density_factor::TEXT, price::TEXT,
		        currency, counterparty, status, trade_date
		 FROM contract_legs
		 WHERE status <> 'cancelled' AND trade_date <= $1
		 ORDER BY contract_id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var legs []model.ContractLeg
	for rows.Next() {
		var l model.ContractLeg
		var qtyS, densityS, priceS string
		if err := rows.Scan(&l.ContractID, &l.ContractNumber, &l.Kind, &l.ProductCode, &l.DeliveryMonth,
			&qtyS, &l.Unit, &densityS, &priceS,
			&l.Currency, &l.Counterparty, &l.Status, &l.TradeDate); err != nil {
			return nil, err
		}
		if err := parseDecimals(
			[]*decimal.Decimal{&l.Quantity, &l.DensityFactor, &l.Price},
			[]string{qtyS, densityS, priceS},
		); err != nil {
			return nil, fmt.Errorf("contract leg %s: %w", l.ContractID, err)
		}
		legs = append(legs, l)
	}
	return legs, rows.Err()
}

func (s *PostgresStore) InsertPriceQuotes(ctx context.Context, quotes []model.PriceQuote) (int, error) {
	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(
			`INSERT INTO price_quotes (product_code, price_date, price, currency, unit, source)
			 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6)
			 ON CONFLICT (product_code, price_date) DO UPDATE SET
				price = EXCLUDED.price, currency = EXCLUDED.currency,
				unit = EXCLUDED.unit, source = EXCLUDED.source`,
			q.ProductCode, dayOf(q.PriceDate), q.Price.String(), q.Currency, q.Unit, q.Source,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for range quotes {
		if _, err := br.Exec(); err != nil {
			return written, fmt.Errorf("insert price quote: %w", err)
		}
		written++
	}
	return written, nil
}

func (s *PostgresStore) GetPriceQuotes(ctx context.Context, productCode string, from, to time.Time) ([]model.PriceQuote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_code, price_date, price::TEXT, currency, unit, source
		 FROM price_quotes
		 WHERE product_code = $1 AND price_date BETWEEN $2 AND $3
		 ORDER BY price_date`, productCode, dayOf(from), dayOf(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []model.PriceQuote
	for rows.Next() {
		var q model.PriceQuote
		var priceS string
		if err := rows.Scan(&q.ProductCode, &q.PriceDate, &priceS, &q.Currency, &q.Unit, &q.Source); err != nil {
			return nil, err
		}
		if q.Price, err = decimal.NewFromString(priceS); err != nil {
			return nil, fmt.Errorf("price quote %s %s: %w", q.ProductCode, q.PriceDate.Format(time.DateOnly), err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// SaveRiskSnapshot stores the snapshot as one JSONB document; snapshots are
// never updated.
func (s *PostgresStore) SaveRiskSnapshot(ctx context.Context, m *model.RiskMetrics) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO risk_snapshots (id, method, var95, computed_at, payload)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5::JSONB)`,
		m.ID, m.Method, m.VaR95.String(), m.Timestamp, payload,
	)
	return err
}

func (s *PostgresStore) LatestRiskSnapshot(ctx context.Context) (*model.RiskMetrics, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM risk_snapshots ORDER BY computed_at DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: risk snapshot", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var m model.RiskMetrics
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode risk snapshot: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) charges(ctx context.Context, settlementID string) ([]model.SettlementCharge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, settlement_id, charge_type, description, amount::TEXT, currency,
		        is_fixed, include_by_default, resolved_amount::TEXT, created_at
		 FROM settlement_charges WHERE settlement_id = $1 ORDER BY position`, settlementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []model.SettlementCharge
	for rows.Next() {
		var c model.SettlementCharge
		var amountS *string
		var resolvedS string
		if err := rows.Scan(&c.ID, &c.SettlementID, &c.ChargeType, &c.Description, &amountS, &c.Currency,
			&c.IsFixed, &c.IncludeByDefault, &resolvedS, &c.CreatedAt); err != nil {
			return nil, err
		}
		if amountS != nil {
			amt, err := decimal.NewFromString(*amountS)
			if err != nil {
				return nil, fmt.Errorf("charge %s amount: %w", c.ID, err)
			}
			c.Amount = decimal.NewNullDecimal(amt)
		}
		if c.ResolvedAmount, err = decimal.NewFromString(resolvedS); err != nil {
			return nil, fmt.Errorf("charge %s resolved amount: %w", c.ID, err)
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

func insertCharges(ctx context.Context, tx pgx.Tx, st *model.ContractSettlement) error {
	for i, c := range st.Charges {
		var amount *string
		if c.Amount.Valid {
			v := c.Amount.Decimal.String()
			amount = &v
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO settlement_charges (id, settlement_id, position, charge_type, description,
				amount, currency, is_fixed, include_by_default, resolved_amount, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10::NUMERIC, $11)`,
			c.ID, st.ID, i, c.ChargeType, c.Description,
			amount, c.Currency, c.IsFixed, c.IncludeByDefault, c.ResolvedAmount.String(), c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert charge %s: %w", c.ID, err)
		}
	}
	return nil
}

func settlementJSON(st *model.ContractSettlement) (rates, history []byte, err error) {
	if rates, err = json.Marshal(st.ChargeRates); err != nil {
		return nil, nil, err
	}
	if history, err = json.Marshal(st.History); err != nil {
		return nil, nil, err
	}
	return rates, history, nil
}

func scanSettlement(row pgx.Row) (*model.ContractSettlement, error) {
	var st model.ContractSettlement
	var actualMT, actualBBL, calcMT, calcBBL, density string
	var price, benchAmt, adj, cargo, charges, total, rate string
	var rates, history []byte

	if err := row.Scan(&st.ID, &st.Kind, &st.ContractID, &st.ContractNumber, &st.ProductCode,
		&st.DocumentNumber, &st.DocumentType, &st.DocumentDate,
		&actualMT, &actualBBL, &calcMT, &calcBBL, &density,
		&price, &st.BenchmarkPriceFormula, &st.BenchmarkUnit, &st.PriceCurrency,
		&st.PricingStartDate, &st.PricingEndDate, &st.QuotesUsed,
		&benchAmt, &adj, &cargo, &charges, &total,
		&st.SettlementCurrency, &rate, &rates,
		&st.Status, &st.IsFinalized, &history,
		&st.CreatedBy, &st.CreatedAt, &st.ModifiedBy, &st.ModifiedAt, &st.Version); err != nil {
		return nil, err
	}

	if err := parseDecimals(
		[]*decimal.Decimal{
			&st.ActualQuantity.MT, &st.ActualQuantity.BBL,
			&st.CalculationQuantity.MT, &st.CalculationQuantity.BBL, &st.DensityFactor,
			&st.BenchmarkPrice, &st.BenchmarkAmount, &st.AdjustmentAmount, &st.CargoValue,
			&st.TotalCharges, &st.TotalSettlementAmount, &st.ExchangeRate,
		},
		[]string{actualMT, actualBBL, calcMT, calcBBL, density, price, benchAmt, adj, cargo, charges, total, rate},
	); err != nil {
		return nil, fmt.Errorf("settlement %s: %w", st.ID, err)
	}
	if len(rates) > 0 {
		if err := json.Unmarshal(rates, &st.ChargeRates); err != nil {
			return nil, fmt.Errorf("settlement %s charge rates: %w", st.ID, err)
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &st.History); err != nil {
			return nil, fmt.Errorf("settlement %s history: %w", st.ID, err)
		}
	}
	return &st, nil
}

func parseDecimals(dst []*decimal.Decimal, src []string) error {
	for i, s := range src {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("parse numeric %q: %w", s, err)
		}
		*dst[i] = v
	}
	return nil
}
