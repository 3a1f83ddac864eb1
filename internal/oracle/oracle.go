// Package oracle provides collateral token prices in micro-USD.
//
// A Source answers "what is the price of this token right now". The Guard
// wraps any source and turns missing, non-positive or too-old quotes into
// vaultmath.ErrStaleOrMissingPrice, so vault limits computed from a bad price
// are reported as zero rather than trusted.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vaultkit/vault-engine/internal/vaultmath"
)

// ErrInvalidQuote is returned when a quote cannot be stored.
var ErrInvalidQuote = errors.New("oracle: invalid quote")

// Quote is a token price observation.
type Quote struct {
	Symbol        string    `json:"symbol"`
	PriceMicroUsd int64     `json:"price_micro_usd"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Source returns the latest quote for a token symbol. A symbol with no
// quote yields an error wrapping vaultmath.ErrStaleOrMissingPrice.
type Source interface {
	GetPrice(ctx context.Context, symbol string) (Quote, error)
}

// Feed is a Source that also accepts price updates.
type Feed interface {
	Source
	SetPrice(ctx context.Context, q Quote) error
}

// NormalizeSymbol upper-cases and trims a token symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (q Quote) validate() error {
	if NormalizeSymbol(q.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidQuote)
	}
	if q.PriceMicroUsd <= 0 {
		return fmt.Errorf("%w: price must be positive, got %d", ErrInvalidQuote, q.PriceMicroUsd)
	}
	if q.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidQuote)
	}
	return nil
}

func missing(symbol string) error {
	return fmt.Errorf("%w: no price for %s", vaultmath.ErrStaleOrMissingPrice, symbol)
}

// MemoryFeed is an in-process Feed.
type MemoryFeed struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewMemoryFeed creates an empty in-memory feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{quotes: make(map[string]Quote)}
}

func (f *MemoryFeed) GetPrice(_ context.Context, symbol string) (Quote, error) {
	symbol = NormalizeSymbol(symbol)
	f.mu.RLock()
	defer f.mu.RUnlock()

	q, ok := f.quotes[symbol]
	if !ok {
		return Quote{}, missing(symbol)
	}
	return q, nil
}

func (f *MemoryFeed) SetPrice(_ context.Context, q Quote) error {
	if err := q.validate(); err != nil {
		return err
	}
	q.Symbol = NormalizeSymbol(q.Symbol)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[q.Symbol] = q
	return nil
}

// Guard rejects quotes older than MaxAge or with a non-positive price.
type Guard struct {
	src    Source
	maxAge time.Duration
	now    func() time.Time
}

// NewGuard wraps src. A zero maxAge disables the age check.
func NewGuard(src Source, maxAge time.Duration) *Guard {
	return &Guard{src: src, maxAge: maxAge, now: time.Now}
}

func (g *Guard) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	q, err := g.src.GetPrice(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	if q.PriceMicroUsd <= 0 {
		return Quote{}, fmt.Errorf("%w: %s price is %d", vaultmath.ErrStaleOrMissingPrice, q.Symbol, q.PriceMicroUsd)
	}
	if g.maxAge > 0 {
		if age := g.now().Sub(q.UpdatedAt); age > g.maxAge {
			return Quote{}, fmt.Errorf("%w: %s price is %s old (max %s)",
				vaultmath.ErrStaleOrMissingPrice, q.Symbol, age.Round(time.Second), g.maxAge)
		}
	}
	return q, nil
}
