package oracle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisFeed stores one hash per symbol so every engine instance sees the
// same prices:
//
//	price:{SYMBOL} -> micro_usd, updated_at (unix millis)
type RedisFeed struct {
	rdb *redis.Client
}

// NewRedisFeed creates a feed backed by rdb.
func NewRedisFeed(rdb *redis.Client) *RedisFeed {
	return &RedisFeed{rdb: rdb}
}

func (f *RedisFeed) GetPrice(ctx context.Context, symbol string) (Quote, error) {
	symbol = NormalizeSymbol(symbol)
	fields, err := f.rdb.HGetAll(ctx, priceKey(symbol)).Result()
	if err != nil {
		return Quote{}, fmt.Errorf("oracle: read %s: %w", symbol, err)
	}
	if len(fields) == 0 {
		return Quote{}, missing(symbol)
	}

	price, err := strconv.ParseInt(fields["micro_usd"], 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("oracle: parse %s price: %w", symbol, err)
	}
	millis, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("oracle: parse %s timestamp: %w", symbol, err)
	}

	return Quote{
		Symbol:        symbol,
		PriceMicroUsd: price,
		UpdatedAt:     time.UnixMilli(millis).UTC(),
	}, nil
}

func (f *RedisFeed) SetPrice(ctx context.Context, q Quote) error {
	if err := q.validate(); err != nil {
		return err
	}
	q.Symbol = NormalizeSymbol(q.Symbol)

	err := f.rdb.HSet(ctx, priceKey(q.Symbol),
		"micro_usd", q.PriceMicroUsd,
		"updated_at", q.UpdatedAt.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("oracle: write %s: %w", q.Symbol, err)
	}
	return nil
}

func priceKey(symbol string) string { return "price:" + symbol }
