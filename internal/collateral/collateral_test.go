package collateral

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestParseTypeName_Valid(t *testing.T) {
	ct, err := ParseTypeName("STX-A")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct.Token != "STX" {
		t.Errorf("expected token=STX, got %s", ct.Token)
	}
	if ct.Series != "A" {
		t.Errorf("expected series=A, got %s", ct.Series)
	}
	if ct.Kind != KindNative {
		t.Errorf("expected native kind, got %s", ct.Kind)
	}
}

func TestParseTypeName_CaseInsensitive(t *testing.T) {
	ct, err := ParseTypeName(" xbtc-a ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct.Name != "XBTC-A" {
		t.Errorf("expected normalized name XBTC-A, got %s", ct.Name)
	}
	if ct.Kind != KindPegged {
		t.Errorf("expected pegged kind, got %s", ct.Kind)
	}
}

func TestParseTypeName_InvalidFormat(t *testing.T) {
	tests := []string{
		"",
		"STX",
		"STX-",
		"STX-AB",
		"STX_A",
		"-A",
		"STX-1",
	}
	for _, name := range tests {
		_, err := ParseTypeName(name)
		if !errors.Is(err, ErrInvalidTypeName) {
			t.Errorf("expected ErrInvalidTypeName for %q, got %v", name, err)
		}
	}
}

func TestParseTypeName_UnknownToken(t *testing.T) {
	_, err := ParseTypeName("DOGE-A")
	if !errors.Is(err, ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken, got %v", err)
	}
}

func TestKindDecimals(t *testing.T) {
	if KindNative.Decimals() != 6 {
		t.Errorf("native decimals should be 6, got %d", KindNative.Decimals())
	}
	if KindPegged.Decimals() != 8 {
		t.Errorf("pegged decimals should be 8, got %d", KindPegged.Decimals())
	}
}

func TestReserveName(t *testing.T) {
	name, err := ReserveName("stx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "arkadiko-stx-reserve-v1-1" {
		t.Errorf("unexpected STX reserve %s", name)
	}
	name, err = ReserveName("xBTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "arkadiko-sip10-reserve-v1-1" {
		t.Errorf("unexpected xBTC reserve %s", name)
	}
	if _, err := ReserveName("DOGE"); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken, got %v", err)
	}
}

func TestParseKind_RoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		parsed, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", k, err)
		}
		if parsed != k {
			t.Errorf("expected %s, got %s", k, parsed)
		}
	}
	if _, err := ParseKind("lp"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestBaseConversion(t *testing.T) {
	if got := FromBase(150_000_000, KindPegged); !got.Equal(d(1.5)) {
		t.Errorf("expected 1.5 xBTC, got %s", got)
	}
	if got := FromBase(1_500_000, KindNative); !got.Equal(d(1.5)) {
		t.Errorf("expected 1.5 STX, got %s", got)
	}

	base, err := ToBase(d(1.23456789), KindNative)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base != 1_234_567 {
		t.Errorf("expected precision beyond 6 decimals to be floored, got %d", base)
	}

	if _, err := ToBase(d(-1), KindNative); !errors.Is(err, ErrNegativeAmount) {
		t.Errorf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestToBase_RejectsOutOfRange(t *testing.T) {
	huge, err := decimal.NewFromString("99999999999999999999")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, k := range []Kind{KindNative, KindPegged} {
		if base, err := ToBase(huge, k); !errors.Is(err, ErrAmountRange) {
			t.Errorf("%v: expected ErrAmountRange, got %d, %v", k, base, err)
		}
	}

	// 9.2e10 XBTC still fits in 8-decimal base units.
	if _, err := ToBase(decimal.NewFromInt(92_000_000_000), KindPegged); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
