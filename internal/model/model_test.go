package model

import (
	"errors"
	"testing"
)

func TestSettlementKindSide(t *testing.T) {
	tests := []struct {
		kind SettlementKind
		want PositionSide
	}{
		{KindPurchase, SideLong},
		{KindSales, SideShort},
	}
	for _, tt := range tests {
		got, err := tt.kind.Side()
		if err != nil || got != tt.want {
			t.Errorf("%s.Side() = %q, %v; want %q", tt.kind, got, err, tt.want)
		}
	}

	for _, kind := range []SettlementKind{"", "Purchase", "sale", "swap"} {
		if _, err := kind.Side(); !errors.Is(err, ErrUnknownKind) {
			t.Errorf("%q.Side(): expected ErrUnknownKind, got %v", kind, err)
		}
	}
}
