package ceiling

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func collateralType(name string, maxMicro, totalMicro int64) model.CollateralType {
	return model.CollateralType{Name: name, MaximumDebt: maxMicro, TotalDebt: totalMicro}
}

func TestCheckMint_WithinLimits(t *testing.T) {
	guard := NewGuard(decimal.Zero)
	stx := collateralType("STX-A", 1_000_000_000, 400_000_000)

	if err := guard.CheckMint(stx, d(600), nil); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckMint_TypeCeilingExceeded(t *testing.T) {
	guard := NewGuard(decimal.Zero)
	// 400 USD minted of a 1000 USD ceiling; 600.01 more is too much.
	stx := collateralType("STX-A", 1_000_000_000, 400_000_000)

	err := guard.CheckMint(stx, d(600.01), nil)
	if !errors.Is(err, ErrDebtCeilingExceeded) {
		t.Errorf("expected ErrDebtCeilingExceeded, got %v", err)
	}
}

func TestCheckMint_GlobalCeilingExceeded(t *testing.T) {
	guard := NewGuard(d(2000))
	stx := collateralType("STX-A", 5_000_000_000, 900_000_000)
	types := []model.CollateralType{
		stx,
		collateralType("XBTC-A", 5_000_000_000, 900_000_000),
	}

	// Per-type room is 4100 USD but only 200 USD is left globally.
	if err := guard.CheckMint(stx, d(200), types); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	err := guard.CheckMint(stx, d(201), types)
	if !errors.Is(err, ErrGlobalCeilingExceeded) {
		t.Errorf("expected ErrGlobalCeilingExceeded, got %v", err)
	}
}

func TestHeadroom_OverCeilingIsZero(t *testing.T) {
	guard := NewGuard(decimal.Zero)
	over := collateralType("STX-A", 1_000_000, 2_000_000)

	if room := guard.Headroom(over); !room.IsZero() {
		t.Errorf("expected zero headroom, got %s", room)
	}
}

func TestGlobalHeadroom_LargeTotalsDoNotWrap(t *testing.T) {
	guard := NewGuard(d(1000))
	// Together the totals exceed an int64 of micro-USD.
	types := []model.CollateralType{
		collateralType("STX-A", math.MaxInt64, 4_700_000_000_000_000_000),
		collateralType("XBTC-A", math.MaxInt64, 4_700_000_000_000_000_000),
	}

	room, ok := guard.GlobalHeadroom(types)
	if !ok {
		t.Fatal("expected the global ceiling to be enabled")
	}
	if !room.IsZero() {
		t.Errorf("expected zero headroom, got %s", room)
	}
	if err := guard.CheckMint(types[0], d(1), types); !errors.Is(err, ErrGlobalCeilingExceeded) {
		t.Errorf("expected ErrGlobalCeilingExceeded, got %v", err)
	}
}

func TestGlobalHeadroom_Disabled(t *testing.T) {
	guard := NewGuard(d(-5))
	if _, ok := guard.GlobalHeadroom(nil); ok {
		t.Error("negative global ceiling should disable the check")
	}
}

func TestCap(t *testing.T) {
	guard := NewGuard(d(1000))
	stx := collateralType("STX-A", 500_000_000, 100_000_000)
	types := []model.CollateralType{stx, collateralType("XBTC-A", 0, 850_000_000)}

	// Limits: computed 150, type room 400, global room 50.
	if got := guard.Cap(d(150), stx, types); !got.Equal(d(50)) {
		t.Errorf("expected cap 50, got %s", got)
	}
	if got := guard.Cap(d(150), stx, nil); !got.Equal(d(150)) {
		t.Errorf("expected cap 150, got %s", got)
	}
}
