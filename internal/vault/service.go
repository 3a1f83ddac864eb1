// Package vault provides the HTTP handlers and business logic for vault
// snapshots, derived solvency metrics, pre-transaction quotes and the price
// feed that drives the vault health scan.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The handlers never read ambient state: every computation receives an
// explicit snapshot of the vault, its collateral type and the current price.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/alert"
	"github.com/vaultkit/vault-engine/internal/ceiling"
	"github.com/vaultkit/vault-engine/internal/collateral"
	"github.com/vaultkit/vault-engine/internal/model"
	"github.com/vaultkit/vault-engine/internal/oracle"
	"github.com/vaultkit/vault-engine/internal/pool"
	"github.com/vaultkit/vault-engine/internal/store"
	"github.com/vaultkit/vault-engine/internal/vaultmath"
)

// Deps are the collaborators of a Service. Store, Feed and Calculator are
// required; a nil Ceiling disables the global ceiling, a nil Alerts logs
// alerts and a nil Hub disables WebSocket broadcasts.
type Deps struct {
	Store       store.Store
	Feed        oracle.Feed
	MaxPriceAge time.Duration
	Calculator  *vaultmath.Calculator
	Ceiling     *ceiling.Guard
	Alerts      alert.Publisher
	Hub         *WSHub
}

// Service handles vault operations.
type Service struct {
	store   store.Store
	feed    oracle.Feed
	prices  *oracle.Guard
	calc    *vaultmath.Calculator
	ceiling *ceiling.Guard
	alerts  alert.Publisher
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
	now     func() time.Time
}

// NewService creates a new vault service.
func NewService(deps Deps) *Service {
	s := &Service{
		store:   deps.Store,
		feed:    deps.Feed,
		prices:  oracle.NewGuard(deps.Feed, deps.MaxPriceAge),
		calc:    deps.Calculator,
		ceiling: deps.Ceiling,
		alerts:  deps.Alerts,
		wsHub:   deps.Hub,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if s.ceiling == nil {
		s.ceiling = ceiling.NewGuard(decimal.Zero)
	}
	if s.alerts == nil {
		s.alerts = alert.NewLogPublisher(slog.Default())
	}
	return s
}

// Routes registers every vault endpoint on r.
func (s *Service) Routes(r chi.Router) {
	// Collateral type parameters.
	r.Get("/collateral-types", s.ListCollateralTypes)
	r.Get("/collateral-types/{name}", s.GetCollateralType)
	r.Put("/collateral-types/{name}", s.PutCollateralType)

	// Vault snapshots and derived metrics.
	r.Get("/vaults", s.ListVaults)
	r.Put("/vaults/{vaultID}", s.PutVault)
	r.Get("/vaults/{vaultID}", s.GetVault)
	r.Get("/vaults/{vaultID}/metrics", s.GetMetrics)
	r.Get("/vaults/{vaultID}/stacking", s.GetStacking)

	// Pre-transaction quotes.
	r.Post("/quotes/create-vault", s.QuoteCreateVault)
	r.Post("/vaults/{vaultID}/quotes/mint", s.QuoteMint)
	r.Post("/vaults/{vaultID}/quotes/withdraw", s.QuoteWithdraw)
	r.Post("/vaults/{vaultID}/quotes/burn", s.QuoteBurn)
	r.Post("/vaults/{vaultID}/quotes/deposit", s.QuoteDeposit)

	// Staking pools.
	r.Get("/pools", s.ListPools)
	r.Post("/pools/{pool}/quotes/stake", s.QuoteStake)
	r.Post("/pools/{pool}/quotes/unstake", s.QuoteUnstake)

	// Price feed.
	r.Put("/prices/{symbol}", s.PutPrice)
	r.Get("/prices/{symbol}", s.GetPrice)

	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
}

// --- Collateral types ---

// ListCollateralTypes handles GET /api/v1/collateral-types
func (s *Service) ListCollateralTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.store.ListCollateralTypes(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if types == nil {
		types = []model.CollateralType{}
	}
	writeJSON(w, http.StatusOK, types)
}

// GetCollateralType handles GET /api/v1/collateral-types/{name}
func (s *Service) GetCollateralType(w http.ResponseWriter, r *http.Request) {
	ct, err := s.store.GetCollateralType(r.Context(), strings.ToUpper(chi.URLParam(r, "name")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ct)
}

// PutCollateralType handles PUT /api/v1/collateral-types/{name}
// Stores risk parameters read from the collateral-types contract.
func (s *Service) PutCollateralType(w http.ResponseWriter, r *http.Request) {
	var ct model.CollateralType
	if err := json.NewDecoder(r.Body).Decode(&ct); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	parsed, err := collateral.ParseTypeName(chi.URLParam(r, "name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if ct.Token != "" && !strings.EqualFold(ct.Token, parsed.Token) {
		writeError(w, fmt.Sprintf("token %s does not match collateral type %s", ct.Token, parsed.Name), http.StatusBadRequest)
		return
	}
	ct.Name = parsed.Name
	ct.Token = parsed.Token
	switch {
	case !ct.LiquidationRatio.IsPositive():
		writeError(w, "liquidation_ratio must be positive", http.StatusBadRequest)
		return
	case ct.CollateralToDebtRatio.IsNegative(), ct.LiquidationPenalty.IsNegative(), ct.StabilityFeeApy.IsNegative():
		writeError(w, "ratios and fees must not be negative", http.StatusBadRequest)
		return
	case ct.MaximumDebt < 0 || ct.TotalDebt < 0:
		writeError(w, "debt amounts must not be negative", http.StatusBadRequest)
		return
	}
	if ct.UpdatedAt.IsZero() {
		ct.UpdatedAt = s.now()
	}

	if err := s.store.UpsertCollateralType(r.Context(), &ct); err != nil {
		writeErr(w, err)
		return
	}

	slog.Info("collateral type stored",
		"name", ct.Name,
		"liquidation_ratio", ct.LiquidationRatio.String(),
		"collateral_to_debt_ratio", ct.CollateralToDebtRatio.String(),
		"maximum_debt", ct.MaximumDebt,
	)
	writeJSON(w, http.StatusOK, ct)
}

// --- Vault snapshots ---

// PutVault handles PUT /api/v1/vaults/{vaultID}
// Ingests a vault snapshot produced upstream from chain state.
func (s *Service) PutVault(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}

	var v model.VaultRecord
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	v.ID = id

	if v.Owner == "" {
		writeError(w, "owner is required", http.StatusBadRequest)
		return
	}
	parsed, err := collateral.ParseTypeName(v.CollateralType)
	if err != nil {
		writeErr(w, err)
		return
	}
	if v.CollateralToken != "" && !strings.EqualFold(v.CollateralToken, parsed.Token) {
		writeError(w, fmt.Sprintf("token %s does not match collateral type %s", v.CollateralToken, parsed.Name), http.StatusBadRequest)
		return
	}
	v.CollateralType = parsed.Name
	v.CollateralToken = parsed.Token
	if v.Collateral < 0 || v.Debt < 0 || v.StabilityFee < 0 || v.LeftoverCollateral < 0 || v.StackedTokens < 0 {
		writeError(w, "amounts must not be negative", http.StatusBadRequest)
		return
	}
	if _, err := pool.StackerContract(v.StackerName); err != nil {
		writeErr(w, err)
		return
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = s.now()
	}

	if err := s.store.UpsertVault(r.Context(), &v); err != nil {
		writeErr(w, err)
		return
	}

	slog.Info("vault snapshot stored",
		"vault_id", v.ID,
		"owner", v.Owner,
		"collateral_type", v.CollateralType,
		"collateral", v.Collateral,
		"debt", v.Debt,
	)
	writeJSON(w, http.StatusOK, v)
}

// GetVault handles GET /api/v1/vaults/{vaultID}
func (s *Service) GetVault(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	v, err := s.store.GetVault(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ListVaults handles GET /api/v1/vaults?owner=<address>
func (s *Service) ListVaults(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, "owner query parameter is required", http.StatusBadRequest)
		return
	}
	vaults, err := s.store.ListVaultsByOwner(r.Context(), owner)
	if err != nil {
		writeErr(w, err)
		return
	}
	if vaults == nil {
		vaults = []model.VaultRecord{}
	}
	writeJSON(w, http.StatusOK, vaults)
}

// MetricsResponse is the JSON body returned from GET /vaults/{id}/metrics.
type MetricsResponse struct {
	VaultID         int64           `json:"vault_id"`
	CollateralType  string          `json:"collateral_type"`
	CollateralToken string          `json:"collateral_token"`
	PriceMicroUsd   int64           `json:"price_micro_usd"`
	Collateral      decimal.Decimal `json:"collateral"`
	Debt            decimal.Decimal `json:"debt"`
	StabilityFee    decimal.Decimal `json:"stability_fee"`
	TotalDebt       decimal.Decimal `json:"total_debt"`
	Health          string          `json:"health"`
	model.DerivedMetrics
}

// GetMetrics handles GET /api/v1/vaults/{vaultID}/metrics
// Derives ratio, liquidation price and mint/withdraw limits from the stored
// snapshot and the current price.
func (s *Service) GetMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	snap, err := s.snapshot(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if snap.priceErr != nil {
		writeErr(w, snap.priceErr)
		return
	}

	m, err := s.calc.Derive(snap.state(), *snap.ct, snap.kind)
	if err != nil {
		writeErr(w, err)
		return
	}
	types, err := s.store.ListCollateralTypes(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	m.MaximumMintableUsd = s.ceiling.Cap(m.MaximumMintableUsd, *snap.ct, types)
	if snap.vault.StackedTokens > 0 {
		m.MaximumWithdrawableCollateral = decimal.Zero
	}

	writeJSON(w, http.StatusOK, MetricsResponse{
		VaultID:         snap.vault.ID,
		CollateralType:  snap.vault.CollateralType,
		CollateralToken: snap.vault.CollateralToken,
		PriceMicroUsd:   snap.price.PriceMicroUsd,
		Collateral:      snap.collateral,
		Debt:            snap.debt,
		StabilityFee:    vaultmath.MicroToReadable(snap.vault.StabilityFee),
		TotalDebt:       vaultmath.DebtWithFee(snap.debt, snap.vault.StabilityFee),
		Health:          string(s.calc.Health(m.CollateralToDebtRatioPercent, snap.ct.LiquidationRatio)),
		DerivedMetrics:  m,
	})
}

// GetStacking handles
// GET /api/v1/vaults/{vaultID}/stacking?unlock_burn_height=&burn_height=
func (s *Service) GetStacking(w http.ResponseWriter, r *http.Request) {
	id, ok := vaultID(w, r)
	if !ok {
		return
	}
	unlock, err := queryHeight(r, "unlock_burn_height")
	if err != nil {
		writeErr(w, err)
		return
	}
	current, err := queryHeight(r, "burn_height")
	if err != nil {
		writeErr(w, err)
		return
	}

	v, err := s.store.GetVault(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	status, err := pool.StackingStatus(*v, unlock, current)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// --- Snapshot assembly ---

// vaultSnapshot is the immutable input of every vault computation.
type vaultSnapshot struct {
	vault      *model.VaultRecord
	ct         *model.CollateralType
	kind       collateral.Kind
	collateral decimal.Decimal // token units
	debt       decimal.Decimal // USD
	price      oracle.Quote
	priceErr   error // vaultmath.ErrStaleOrMissingPrice when no usable price
}

func (v vaultSnapshot) state() model.VaultState {
	return model.VaultState{
		CollateralAmount:             v.collateral,
		DebtAmount:                   v.debt,
		CollateralTokenPriceMicroUsd: v.price.PriceMicroUsd,
	}
}

func (v vaultSnapshot) priceUsd() decimal.Decimal {
	return vaultmath.MicroToReadable(v.price.PriceMicroUsd)
}

func (s *Service) snapshot(ctx context.Context, id int64) (*vaultSnapshot, error) {
	v, err := s.store.GetVault(ctx, id)
	if err != nil {
		return nil, err
	}
	ct, err := s.store.GetCollateralType(ctx, v.CollateralType)
	if err != nil {
		return nil, err
	}
	kind, err := collateral.KindForToken(v.CollateralToken)
	if err != nil {
		return nil, err
	}

	snap := &vaultSnapshot{
		vault:      v,
		ct:         ct,
		kind:       kind,
		collateral: collateral.FromBase(v.Collateral, kind),
		debt:       vaultmath.MicroToReadable(v.Debt),
	}
	snap.price, snap.priceErr = s.price(ctx, v.CollateralToken)
	if snap.priceErr != nil && !errors.Is(snap.priceErr, vaultmath.ErrStaleOrMissingPrice) {
		return nil, snap.priceErr
	}
	return snap, nil
}

// price returns the guarded quote for token. A stale or missing price
// yields a zero quote with an error wrapping ErrStaleOrMissingPrice.
func (s *Service) price(ctx context.Context, token string) (oracle.Quote, error) {
	q, err := s.prices.GetPrice(ctx, token)
	if err != nil {
		return oracle.Quote{Symbol: oracle.NormalizeSymbol(token)}, err
	}
	return q, nil
}

// --- Helpers ---

func vaultID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "vaultID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, "vault id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func queryHeight(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	h, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || h < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", vaultmath.ErrInvalidInput, name)
	}
	return h, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, pool.ErrUnknownPool):
		return http.StatusNotFound
	case errors.Is(err, store.ErrStaleSnapshot):
		return http.StatusConflict
	case errors.Is(err, vaultmath.ErrStaleOrMissingPrice):
		return http.StatusServiceUnavailable
	case errors.Is(err, vaultmath.ErrExceedsMaximum),
		errors.Is(err, ceiling.ErrDebtCeilingExceeded),
		errors.Is(err, ceiling.ErrGlobalCeilingExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vaultmath.ErrInvalidInput),
		errors.Is(err, vaultmath.ErrUndefinedRatio),
		errors.Is(err, collateral.ErrInvalidTypeName),
		errors.Is(err, collateral.ErrUnknownToken),
		errors.Is(err, collateral.ErrAmountRange),
		errors.Is(err, pool.ErrUnknownStacker),
		errors.Is(err, oracle.ErrInvalidQuote):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeErr writes err with the status its kind maps to. Unexpected errors
// are logged and hidden from the client.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
