// Package collateral handles collateral-type name parsing and the closed set
// of collateral token kinds with their on-chain decimal scales.
package collateral

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind classifies a collateral token. Kinds drive the decimal scale of the
// token's base units and the protocol's minimum collateral ratio floor.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNative is the chain's native token (STX): volatile, 6 decimals.
	KindNative
	// KindPegged is a token pegged to an external asset (xBTC): 8 decimals.
	KindPegged
)

type kindSpec struct {
	name     string
	decimals int32
	reserve  string // collateral reserve contract
}

var kinds = map[Kind]kindSpec{
	KindNative: {name: "native", decimals: 6, reserve: "arkadiko-stx-reserve-v1-1"},
	KindPegged: {name: "pegged", decimals: 8, reserve: "arkadiko-sip10-reserve-v1-1"},
}

// tokens maps an upper-cased collateral token symbol to its kind.
var tokens = map[string]Kind{
	"STX":  KindNative,
	"XBTC": KindPegged,
}

// typeNameRegex matches: {TOKEN}-{SERIES}
// Example: STX-A, XBTC-A
var typeNameRegex = regexp.MustCompile(`^([A-Z]+)-([A-Z])$`)

var (
	ErrInvalidTypeName = errors.New("collateral: invalid collateral type name")
	ErrUnknownToken    = errors.New("collateral: unsupported collateral token")
	ErrUnknownKind     = errors.New("collateral: unknown token kind")
	ErrNegativeAmount  = errors.New("collateral: amount must not be negative")
	ErrAmountRange     = errors.New("collateral: amount out of range")
)

// Type is a parsed collateral type name.
type Type struct {
	Name   string `json:"name"`
	Token  string `json:"token"`
	Series string `json:"series"`
	Kind   Kind   `json:"kind"`
}

// ParseTypeName parses and validates a collateral type name.
// Format: {TOKEN}-{SERIES}
func ParseTypeName(name string) (*Type, error) {
	matches := typeNameRegex.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(name)))
	if matches == nil {
		return nil, fmt.Errorf("%w: %q (expected {TOKEN}-{SERIES}, e.g. STX-A)",
			ErrInvalidTypeName, name)
	}

	kind, err := KindForToken(matches[1])
	if err != nil {
		return nil, err
	}

	return &Type{
		Name:   matches[0],
		Token:  matches[1],
		Series: matches[2],
		Kind:   kind,
	}, nil
}

// KindForToken resolves the kind of a collateral token symbol. Symbols are
// matched case-insensitively ("stx", "STX").
func KindForToken(symbol string) (Kind, error) {
	kind, ok := tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return KindUnknown, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return kind, nil
}

// ReserveName returns the reserve contract holding collateral of the given
// token symbol.
func ReserveName(symbol string) (string, error) {
	kind, err := KindForToken(symbol)
	if err != nil {
		return "", err
	}
	return kinds[kind].reserve, nil
}

// ParseKind resolves a kind from its configuration name ("native", "pegged").
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, spec := range kinds {
		if spec.name == name {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %s", ErrUnknownKind, name)
}

// Kinds returns every known kind.
func Kinds() []Kind {
	return []Kind{KindNative, KindPegged}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

// Decimals returns the number of decimal places of the kind's base unit.
// Unknown kinds use the micro-unit scale.
func (k Kind) Decimals() int32 {
	if spec, ok := kinds[k]; ok {
		return spec.decimals
	}
	return 6
}

func (k Kind) String() string {
	if spec, ok := kinds[k]; ok {
		return spec.name
	}
	return "unknown"
}

// MarshalText lets kinds appear by name in JSON and YAML.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// FromBase converts an on-chain base-unit amount to token units.
func FromBase(base int64, k Kind) decimal.Decimal {
	return decimal.New(base, -k.Decimals())
}

// ToBase converts a token-unit amount to whole base units, flooring any
// precision beyond the kind's scale.
func ToBase(amount decimal.Decimal, k Kind) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}
	base := amount.Shift(k.Decimals()).Floor()
	if base.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("%w: %s", ErrAmountRange, amount)
	}
	return base.IntPart(), nil
}
