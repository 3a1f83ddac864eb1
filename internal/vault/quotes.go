package vault

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/ceiling"
	"github.com/vaultkit/vault-engine/internal/collateral"
	"github.com/vaultkit/vault-engine/internal/metrics"
	"github.com/vaultkit/vault-engine/internal/model"
	"github.com/vaultkit/vault-engine/internal/pool"
	"github.com/vaultkit/vault-engine/internal/vaultmath"
)

// QuoteRequest is the JSON body of a vault or pool quote. Amounts are the
// strings typed into the amount field: "12.5" and "12,5" are equivalent.
type QuoteRequest struct {
	Amount  string `json:"amount"`
	Balance string `json:"balance,omitempty"` // wallet balance, deposit and stake
	Staked  string `json:"staked,omitempty"`  // unstake only
}

// CreateVaultRequest is the JSON body for POST /api/v1/quotes/create-vault.
type CreateVaultRequest struct {
	CollateralType string `json:"collateral_type"`
	Collateral     string `json:"collateral"`
	Mint           string `json:"mint"`
	Balance        string `json:"balance"`
}

// QuoteResponse describes whether a vault transaction would succeed and the
// bounds a wallet needs to build it.
type QuoteResponse struct {
	QuoteID string          `json:"quote_id"`
	Op      string          `json:"op"`
	VaultID int64           `json:"vault_id,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	Maximum decimal.Decimal `json:"maximum"`

	// Contracts the transaction touches.
	ReserveContract string `json:"reserve_contract,omitempty"`
	PoolContract    string `json:"pool_contract,omitempty"`
	TokenContract   string `json:"token_contract,omitempty"`

	// BurnCeiling bounds the stablecoin leaving the wallet on a burn.
	BurnCeiling *decimal.Decimal `json:"burn_ceiling,omitempty"`

	RatioAfterPercent     *decimal.Decimal `json:"ratio_after_percent,omitempty"`
	LiquidationPriceAfter *decimal.Decimal `json:"liquidation_price_after,omitempty"`
	HealthAfter           string           `json:"health_after,omitempty"`

	Error string `json:"error,omitempty"`
}

// QuoteCreateVault handles POST /api/v1/quotes/create-vault
// Checks a deposit and first mint against the selected collateral type.
func (s *Service) QuoteCreateVault(w http.ResponseWriter, r *http.Request) {
	var req CreateVaultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp := QuoteResponse{QuoteID: uuid.New().String(), Op: "create_vault"}

	parsed, err := collateral.ParseTypeName(req.CollateralType)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	ct, err := s.store.GetCollateralType(r.Context(), parsed.Name)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	kind, err := collateral.KindForToken(parsed.Token)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	coll, err := vaultmath.ParseAmount(req.Collateral)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	mint, err := vaultmath.ParseAmount(req.Mint)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	balance, err := vaultmath.ParseAmount(req.Balance)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.Amount = mint
	resp.ReserveContract, _ = collateral.ReserveName(parsed.Token)

	if err := s.calc.ValidateDeposit(coll, balance, kind); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}

	q, err := s.price(r.Context(), parsed.Token)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	price := vaultmath.MicroToReadable(q.PriceMicroUsd)
	max, err := s.calc.AvailableCoinsToMint(price, coll, decimal.Zero, ct.CollateralToDebtRatio, kind)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.Maximum, err = s.capMint(r.Context(), max, *ct)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}

	if err := vaultmath.ValidateMint(mint, max); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	if err := s.checkCeiling(r.Context(), *ct, mint); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}

	if err := s.projectAfter(&resp, q.PriceMicroUsd, mint, coll, *ct); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	s.acceptQuote(w, resp)
}

// QuoteMint handles POST /api/v1/vaults/{vaultID}/quotes/mint
func (s *Service) QuoteMint(w http.ResponseWriter, r *http.Request) {
	snap, req, resp, ok := s.beginQuote(w, r, "mint")
	if !ok {
		return
	}
	if snap.priceErr != nil {
		s.rejectQuote(w, resp, snap.priceErr)
		return
	}

	max, err := s.calc.AvailableCoinsToMint(snap.priceUsd(), snap.collateral, snap.debt,
		snap.ct.CollateralToDebtRatio, snap.kind)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.Maximum, err = s.capMint(r.Context(), max, *snap.ct)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}

	amount, err := vaultmath.ParseAmount(req.Amount)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.Amount = amount
	if err := vaultmath.ValidateMint(amount, max); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	if err := s.checkCeiling(r.Context(), *snap.ct, amount); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}

	if err := s.projectAfter(&resp, snap.price.PriceMicroUsd, snap.debt.Add(amount), snap.collateral, *snap.ct); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	s.acceptQuote(w, resp)
}

// QuoteWithdraw handles POST /api/v1/vaults/{vaultID}/quotes/withdraw
// Stacked collateral is locked; a vault with stacked tokens can withdraw
// nothing.
func (s *Service) QuoteWithdraw(w http.ResponseWriter, r *http.Request) {
	snap, req, resp, ok := s.beginQuote(w, r, "withdraw")
	if !ok {
		return
	}
	resp.ReserveContract, _ = collateral.ReserveName(snap.vault.CollateralToken)

	max, err := s.calc.AvailableCollateralToWithdraw(snap.priceUsd(), snap.collateral, snap.debt,
		snap.ct.CollateralToDebtRatio, snap.kind)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	if snap.vault.StackedTokens > 0 {
		max = decimal.Zero
	}
	resp.Maximum = max

	amount, err := vaultmath.ParseAmount(req.Amount)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.Amount = amount
	if err := vaultmath.ValidateWithdraw(amount, max); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}

	if err := s.projectAfter(&resp, snap.price.PriceMicroUsd, snap.debt, snap.collateral.Sub(amount), *snap.ct); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	s.acceptQuote(w, resp)
}

// QuoteBurn handles POST /api/v1/vaults/{vaultID}/quotes/burn
// The response carries the burn ceiling: the amount plus twice the accrued
// stability fee.
func (s *Service) QuoteBurn(w http.ResponseWriter, r *http.Request) {
	snap, req, resp, ok := s.beginQuote(w, r, "burn")
	if !ok {
		return
	}
	resp.Maximum = snap.debt

	amount, err := vaultmath.ParseAmount(req.Amount)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.Amount = amount
	if err := vaultmath.ValidateBurn(amount, snap.debt); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}

	ceil := vaultmath.BurnCeiling(amount, snap.vault.StabilityFee)
	resp.BurnCeiling = &ceil
	if err := s.projectAfter(&resp, snap.price.PriceMicroUsd, snap.debt.Sub(amount), snap.collateral, *snap.ct); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	s.acceptQuote(w, resp)
}

// QuoteDeposit handles POST /api/v1/vaults/{vaultID}/quotes/deposit
func (s *Service) QuoteDeposit(w http.ResponseWriter, r *http.Request) {
	snap, req, resp, ok := s.beginQuote(w, r, "deposit")
	if !ok {
		return
	}
	resp.ReserveContract, _ = collateral.ReserveName(snap.vault.CollateralToken)

	balance, err := vaultmath.ParseAmount(req.Balance)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.Maximum, err = s.calc.MaxDeposit(balance, snap.kind)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}

	amount, err := vaultmath.ParseAmount(req.Amount)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.Amount = amount
	if err := s.calc.ValidateDeposit(amount, balance, snap.kind); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}

	if err := s.projectAfter(&resp, snap.price.PriceMicroUsd, snap.debt, snap.collateral.Add(amount), *snap.ct); err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	s.acceptQuote(w, resp)
}

// --- Pools ---

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pool.All())
}

// QuoteStake handles POST /api/v1/pools/{pool}/quotes/stake
func (s *Service) QuoteStake(w http.ResponseWriter, r *http.Request) {
	s.quotePool(w, r, "stake")
}

// QuoteUnstake handles POST /api/v1/pools/{pool}/quotes/unstake
func (s *Service) QuoteUnstake(w http.ResponseWriter, r *http.Request) {
	s.quotePool(w, r, "unstake")
}

func (s *Service) quotePool(w http.ResponseWriter, r *http.Request, op string) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	resp := QuoteResponse{QuoteID: uuid.New().String(), Op: op}

	spec, err := pool.Lookup(chi.URLParam(r, "pool"))
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.PoolContract = spec.PoolContract
	resp.TokenContract = spec.TokenContract

	limit := req.Balance
	if op == "unstake" {
		limit = req.Staked
	}
	max, err := vaultmath.ParseAmount(limit)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.Maximum = max

	amount, err := vaultmath.ParseAmount(req.Amount)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	resp.Amount = amount

	if op == "unstake" {
		err = pool.ValidateUnstake(amount, max)
	} else {
		err = pool.ValidateStake(amount, max)
	}
	if err != nil {
		s.rejectQuote(w, resp, err)
		return
	}
	s.acceptQuote(w, resp)
}

// --- Quote helpers ---

// beginQuote decodes the request and loads the vault snapshot. It writes
// the error response itself and reports ok=false when the quote cannot
// proceed.
func (s *Service) beginQuote(w http.ResponseWriter, r *http.Request, op string) (*vaultSnapshot, QuoteRequest, QuoteResponse, bool) {
	var req QuoteRequest
	id, ok := vaultID(w, r)
	if !ok {
		return nil, req, QuoteResponse{}, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return nil, req, QuoteResponse{}, false
	}

	resp := QuoteResponse{QuoteID: uuid.New().String(), Op: op, VaultID: id}
	snap, err := s.snapshot(r.Context(), id)
	if err != nil {
		s.rejectQuote(w, resp, err)
		return nil, req, resp, false
	}
	if snap.vault.IsLiquidated {
		s.rejectQuote(w, resp, errLiquidated)
		return nil, req, resp, false
	}
	return snap, req, resp, true
}

var errLiquidated = errors.New("vault: vault is liquidated")

// capMint limits a mint maximum to what the debt ceilings still allow.
func (s *Service) capMint(ctx context.Context, max decimal.Decimal, ct model.CollateralType) (decimal.Decimal, error) {
	types, err := s.store.ListCollateralTypes(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return s.ceiling.Cap(max, ct, types), nil
}

func (s *Service) checkCeiling(ctx context.Context, ct model.CollateralType, amount decimal.Decimal) error {
	types, err := s.store.ListCollateralTypes(ctx)
	if err != nil {
		return err
	}
	if err := s.ceiling.CheckMint(ct, amount, types); err != nil {
		metrics.CeilingRejections.Inc()
		return err
	}
	return nil
}

// projectAfter fills the ratio, liquidation price and health the vault
// would have after the transaction. Undefined values stay nil. A position
// too large to express in on-chain units fails with an out-of-range error.
func (s *Service) projectAfter(resp *QuoteResponse, priceMicroUsd int64, debt, coll decimal.Decimal, ct model.CollateralType) error {
	if debt.IsNegative() || coll.IsNegative() {
		return nil
	}
	kind, err := collateral.KindForToken(ct.Token)
	if err != nil {
		return err
	}
	debtMicro, err := vaultmath.ReadableToMicro(debt)
	if err != nil {
		return err
	}
	collBase, err := collateral.ToBase(coll, kind)
	if err != nil {
		return err
	}

	var ratio *decimal.Decimal
	if v, err := vaultmath.CollateralToDebtRatio(priceMicroUsd, debt, coll); err == nil {
		ratio = &v
	} else if !errors.Is(err, vaultmath.ErrUndefinedRatio) {
		return nil
	}
	resp.RatioAfterPercent = ratio
	resp.HealthAfter = string(s.calc.Health(ratio, ct.LiquidationRatio))

	if liq, err := vaultmath.LiquidationPrice(ct.LiquidationRatio, debtMicro, collBase, kind); err == nil {
		resp.LiquidationPriceAfter = &liq
	}
	return nil
}

func (s *Service) acceptQuote(w http.ResponseWriter, resp QuoteResponse) {
	metrics.QuotesTotal.WithLabelValues(resp.Op, "ok").Inc()
	writeJSON(w, http.StatusOK, resp)
}

// rejectQuote writes a failed quote. The maximum stays in the body so the
// client can offer it; a stale price reports a zero maximum.
func (s *Service) rejectQuote(w http.ResponseWriter, resp QuoteResponse, err error) {
	outcome := "rejected"
	status := statusFor(err)
	switch {
	case errors.Is(err, errLiquidated):
		status = http.StatusConflict
	case errors.Is(err, vaultmath.ErrStaleOrMissingPrice):
		outcome = "stale_price"
		resp.Maximum = decimal.Zero
	case errors.Is(err, ceiling.ErrDebtCeilingExceeded), errors.Is(err, ceiling.ErrGlobalCeilingExceeded):
		outcome = "ceiling"
	}
	metrics.QuotesTotal.WithLabelValues(resp.Op, outcome).Inc()

	if status == http.StatusInternalServerError {
		writeErr(w, err)
		return
	}
	resp.Error = err.Error()
	writeJSON(w, status, resp)
}
