package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/collateral"
	"github.com/vaultkit/vault-engine/internal/metrics"
	"github.com/vaultkit/vault-engine/internal/model"
	"github.com/vaultkit/vault-engine/internal/oracle"
	"github.com/vaultkit/vault-engine/internal/vaultmath"
)

// PriceUpdate is the JSON body for PUT /api/v1/prices/{symbol}.
type PriceUpdate struct {
	PriceMicroUsd int64     `json:"price_micro_usd"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// ScanSummary reports the outcome of one health scan.
type ScanSummary struct {
	Token         string         `json:"token"`
	PriceMicroUsd int64          `json:"price_micro_usd"`
	Vaults        int            `json:"vaults"`
	ByHealth      map[string]int `json:"by_health"`
	Alerts        int            `json:"alerts"`
}

// PriceResponse is returned from PUT /api/v1/prices/{symbol}.
type PriceResponse struct {
	Quote oracle.Quote `json:"quote"`
	Scan  ScanSummary  `json:"scan"`
}

// PutPrice handles PUT /api/v1/prices/{symbol}
// Stores the price, broadcasts it and rescans every open vault backed by the
// token.
func (s *Service) PutPrice(w http.ResponseWriter, r *http.Request) {
	symbol := oracle.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if _, err := collateral.KindForToken(symbol); err != nil {
		writeErr(w, err)
		return
	}

	var req PriceUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	q := oracle.Quote{Symbol: symbol, PriceMicroUsd: req.PriceMicroUsd, UpdatedAt: req.UpdatedAt}
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = s.now()
	}

	if err := s.feed.SetPrice(r.Context(), q); err != nil {
		writeErr(w, err)
		return
	}
	metrics.PriceUpdates.WithLabelValues(symbol).Inc()

	slog.Info("price updated",
		"token", symbol,
		"price_micro_usd", q.PriceMicroUsd,
		"updated_at", q.UpdatedAt,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:          "price_updated",
			Token:         symbol,
			PriceMicroUsd: q.PriceMicroUsd,
			Timestamp:     q.UpdatedAt,
		})
	}

	summary, err := s.ScanToken(r.Context(), symbol)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{Quote: q, Scan: summary})
}

// GetPrice handles GET /api/v1/prices/{symbol}
// Stale or missing prices answer 503.
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	q, err := s.prices.GetPrice(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// ScanToken classifies every open vault backed by token against the current
// price, updates the health gauges and publishes an alert for each vault at
// risk or liquidatable.
//
// A stale or missing price fails the scan with
// vaultmath.ErrStaleOrMissingPrice; no vault is classified.
func (s *Service) ScanToken(ctx context.Context, token string) (ScanSummary, error) {
	token = oracle.NormalizeSymbol(token)
	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues(token).Observe(time.Since(start).Seconds())
	}()

	q, err := s.price(ctx, token)
	if err != nil {
		return ScanSummary{}, err
	}
	kind, err := collateral.KindForToken(token)
	if err != nil {
		return ScanSummary{}, err
	}
	vaults, err := s.store.ListVaultsByToken(ctx, token)
	if err != nil {
		return ScanSummary{}, fmt.Errorf("list vaults for %s: %w", token, err)
	}

	summary := ScanSummary{
		Token:         token,
		PriceMicroUsd: q.PriceMicroUsd,
		Vaults:        len(vaults),
		ByHealth:      make(map[string]int, 4),
	}
	params := make(map[string]*model.CollateralType)

	for _, v := range vaults {
		ct, ok := params[v.CollateralType]
		if !ok {
			ct, err = s.store.GetCollateralType(ctx, v.CollateralType)
			if err != nil {
				slog.Warn("scan: collateral type unavailable",
					"vault_id", v.ID, "collateral_type", v.CollateralType, "err", err)
				continue
			}
			params[v.CollateralType] = ct
		}

		var ratio *decimal.Decimal
		r, err := vaultmath.CollateralToDebtRatio(q.PriceMicroUsd,
			vaultmath.MicroToReadable(v.Debt), collateral.FromBase(v.Collateral, kind))
		switch {
		case err == nil:
			ratio = &r
		case errors.Is(err, vaultmath.ErrUndefinedRatio):
		default:
			slog.Warn("scan: ratio failed", "vault_id", v.ID, "err", err)
			continue
		}

		health := s.calc.Health(ratio, ct.LiquidationRatio)
		summary.ByHealth[string(health)]++
		if !health.Alerting() {
			continue
		}

		a := model.VaultAlert{
			ID:               uuid.New().String(),
			VaultID:          v.ID,
			Owner:            v.Owner,
			CollateralToken:  token,
			Health:           string(health),
			RatioPercent:     *ratio,
			LiquidationRatio: ct.LiquidationRatio,
			PriceMicroUsd:    q.PriceMicroUsd,
			Timestamp:        s.now(),
		}
		if err := s.alerts.Publish(ctx, a); err != nil {
			slog.Error("publish alert failed", "vault_id", v.ID, "err", err)
			continue
		}
		summary.Alerts++
		metrics.AlertsTotal.WithLabelValues(a.Health).Inc()

		if s.wsHub != nil {
			s.wsHub.Broadcast(WSMessage{
				Type:          "vault_health",
				Token:         token,
				PriceMicroUsd: q.PriceMicroUsd,
				VaultID:       v.ID,
				RatioPercent:  a.RatioPercent.String(),
				Health:        a.Health,
				Timestamp:     a.Timestamp,
			})
		}
	}

	for _, h := range []vaultmath.Health{
		vaultmath.HealthNoDebt, vaultmath.HealthHealthy,
		vaultmath.HealthAtRisk, vaultmath.HealthLiquidatable,
	} {
		metrics.VaultsByHealth.WithLabelValues(token, string(h)).Set(float64(summary.ByHealth[string(h)]))
	}

	slog.Info("health scan complete",
		"token", token,
		"price_micro_usd", q.PriceMicroUsd,
		"vaults", summary.Vaults,
		"alerts", summary.Alerts,
	)
	return summary, nil
}
