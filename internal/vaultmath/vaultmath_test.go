package vaultmath

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/collateral"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Unit conversion tests ---

func TestMicroToReadable(t *testing.T) {
	if got := MicroToReadable(1_500_000); !got.Equal(d(1.5)) {
		t.Errorf("expected 1.5, got %s", got)
	}
	if got := MicroToReadable(1); !got.Equal(d(0.000001)) {
		t.Errorf("expected 0.000001, got %s", got)
	}
}

func TestReadableToMicro_FloorsSubMicro(t *testing.T) {
	micro, err := ReadableToMicro(d(1.2345678))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if micro != 1_234_567 {
		t.Errorf("expected 1234567, got %d", micro)
	}

	if _, err := ReadableToMicro(d(-0.5)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReadableToMicro_RejectsOutOfRange(t *testing.T) {
	huge, err := ParseAmount("99999999999999999999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if micro, err := ReadableToMicro(huge); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %d, %v", micro, err)
	}

	// The largest value that still fits converts exactly.
	largest := decimal.New(math.MaxInt64, -MicroScale)
	micro, err := ReadableToMicro(largest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if micro != math.MaxInt64 {
		t.Errorf("expected %d, got %d", int64(math.MaxInt64), micro)
	}
}

func TestFromFloat_RejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := FromFloat(f); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for %v, got %v", f, err)
		}
	}
	got, err := FromFloat(2.5)
	if err != nil || !got.Equal(d(2.5)) {
		t.Errorf("expected 2.5, got %s (%v)", got, err)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12.5", 12.5},
		{"12,5", 12.5},
		{" 7 ", 7},
		{".5", 0.5},
		{"5.", 5},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if err != nil {
			t.Errorf("ParseAmount(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if !got.Equal(d(tt.want)) {
			t.Errorf("ParseAmount(%q) = %s, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseAmount_Malformed(t *testing.T) {
	for _, in := range []string{"", ".", ",", "-1", "1.2.3", "1,2.3", "abc", "1e5", "+3"} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseAmount(%q): expected ErrInvalidInput, got %v", in, err)
		}
	}
}

// --- Ratio tests ---

func TestCollateralToDebtRatio_ScenarioA(t *testing.T) {
	ratio, err := CollateralToDebtRatio(1_000_000, d(200), d(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ratio.Equal(d(500)) {
		t.Errorf("expected ratio 500%%, got %s", ratio)
	}
}

func TestCollateralToDebtRatio_ZeroDebtIsUndefined(t *testing.T) {
	_, err := CollateralToDebtRatio(2_000_000, d(0), d(500))
	if !errors.Is(err, ErrUndefinedRatio) {
		t.Errorf("expected ErrUndefinedRatio, got %v", err)
	}
}

func TestCollateralToDebtRatio_Errors(t *testing.T) {
	if _, err := CollateralToDebtRatio(1_000_000, d(-1), d(10)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative debt: expected ErrInvalidInput, got %v", err)
	}
	if _, err := CollateralToDebtRatio(1_000_000, d(1), d(-10)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative collateral: expected ErrInvalidInput, got %v", err)
	}
	if _, err := CollateralToDebtRatio(0, d(1), d(10)); !errors.Is(err, ErrStaleOrMissingPrice) {
		t.Errorf("zero price: expected ErrStaleOrMissingPrice, got %v", err)
	}
	if _, err := CollateralToDebtRatio(-5, d(1), d(10)); !errors.Is(err, ErrStaleOrMissingPrice) {
		t.Errorf("negative price: expected ErrStaleOrMissingPrice, got %v", err)
	}
}

func TestCollateralToDebtRatio_MonotonicInPrice(t *testing.T) {
	prices := []int64{1, 250_000, 999_999, 1_000_000, 1_000_001, 7_500_000, 40_000_000_000}
	prev := decimal.Zero
	for _, p := range prices {
		ratio, err := CollateralToDebtRatio(p, d(123.45), d(1000))
		if err != nil {
			t.Fatalf("unexpected error at price %d: %v", p, err)
		}
		if ratio.LessThanOrEqual(prev) {
			t.Errorf("ratio should strictly increase with price: %s at %d after %s", ratio, p, prev)
		}
		prev = ratio
	}
}

func TestCollateralToDebtRatio_MonotonicInCollateral(t *testing.T) {
	amounts := []float64{0, 0.000001, 1, 99.99, 100, 100.000001, 5000, 1e12}
	prev := decimal.NewFromInt(-1)
	for _, c := range amounts {
		ratio, err := CollateralToDebtRatio(1_250_000, d(123.45), d(c))
		if err != nil {
			t.Fatalf("unexpected error at collateral %v: %v", c, err)
		}
		if ratio.LessThanOrEqual(prev) {
			t.Errorf("ratio should strictly increase with collateral: %s at %v after %s", ratio, c, prev)
		}
		prev = ratio
	}
}

// --- Liquidation price tests ---

func TestLiquidationPrice_ScenarioA(t *testing.T) {
	price, err := LiquidationPrice(d(140), 200_000_000, 1_000_000_000, collateral.KindNative)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(d(0.28)) {
		t.Errorf("expected liquidation price 0.28, got %s", price)
	}
}

func TestLiquidationPrice_ScenarioB_ZeroDebt(t *testing.T) {
	price, err := LiquidationPrice(d(140), 0, 500_000_000, collateral.KindNative)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.IsZero() {
		t.Errorf("expected liquidation price 0 with no debt, got %s", price)
	}
}

func TestLiquidationPrice_ScenarioD_ZeroCollateral(t *testing.T) {
	_, err := LiquidationPrice(d(140), 200_000_000, 0, collateral.KindNative)
	if !errors.Is(err, ErrUndefinedRatio) {
		t.Errorf("expected ErrUndefinedRatio, got %v", err)
	}
}

func TestLiquidationPrice_PeggedDecimals(t *testing.T) {
	// 0.5 xBTC backing 10,000 USD at 150%: 1.5 * 10000 / 0.5 = 30000.
	price, err := LiquidationPrice(d(150), 10_000_000_000, 50_000_000, collateral.KindPegged)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(d(30000)) {
		t.Errorf("expected 30000, got %s", price)
	}
}

func TestLiquidationPrice_InvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		ratio      float64
		debt, coll int64
		kind       collateral.Kind
	}{
		{"zero ratio", 0, 1, 1, collateral.KindNative},
		{"negative ratio", -140, 1, 1, collateral.KindNative},
		{"negative debt", 140, -1, 1, collateral.KindNative},
		{"negative collateral", 140, 1, -1, collateral.KindNative},
		{"unknown kind", 140, 1, 1, collateral.KindUnknown},
	}
	for _, tt := range tests {
		_, err := LiquidationPrice(d(tt.ratio), tt.debt, tt.coll, tt.kind)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tt.name, err)
		}
	}
}

func TestLiquidationPrice_InverseConsistency(t *testing.T) {
	tolerance := d(0.01)
	tests := []struct {
		ratio      float64
		debtMicro  int64
		collateral int64 // native base units
	}{
		{150, 200_000_000, 1_000_000_000},
		{140, 333_330_000, 777_000_000},
		{175, 12_345_678_900, 98_765_432_100},
		{110, 1_000_000, 3_000_000},
	}
	for _, tt := range tests {
		price, err := LiquidationPrice(d(tt.ratio), tt.debtMicro, tt.collateral, collateral.KindNative)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		priceMicro, err := ReadableToMicro(price)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ratio, err := CollateralToDebtRatio(priceMicro,
			MicroToReadable(tt.debtMicro), collateral.FromBase(tt.collateral, collateral.KindNative))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ratio.Sub(d(tt.ratio)).Abs().GreaterThan(tolerance) {
			t.Errorf("round trip of ratio %v gave %s (price %s)", tt.ratio, ratio, price)
		}
	}
}
