package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vaultkit/vault-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Ratios are stored as NUMERIC for exact decimal precision; on-chain
// quantities are BIGINT base units.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const vaultColumns = `id, owner, collateral_type, collateral_token,
	collateral, debt, stability_fee, leftover_collateral, stacked_tokens,
	stacker_name, revoked_stacking, is_liquidated, auction_ended, updated_at`

func (s *PostgresStore) UpsertVault(ctx context.Context, v *model.VaultRecord) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO vaults (`+vaultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		     owner = EXCLUDED.owner,
		     collateral_type = EXCLUDED.collateral_type,
		     collateral_token = EXCLUDED.collateral_token,
		     collateral = EXCLUDED.collateral,
		     debt = EXCLUDED.debt,
		     stability_fee = EXCLUDED.stability_fee,
		     leftover_collateral = EXCLUDED.leftover_collateral,
		     stacked_tokens = EXCLUDED.stacked_tokens,
		     stacker_name = EXCLUDED.stacker_name,
		     revoked_stacking = EXCLUDED.revoked_stacking,
		     is_liquidated = EXCLUDED.is_liquidated,
		     auction_ended = EXCLUDED.auction_ended,
		     updated_at = EXCLUDED.updated_at
		 WHERE vaults.updated_at <= EXCLUDED.updated_at`,
		v.ID, v.Owner, v.CollateralType, v.CollateralToken,
		v.Collateral, v.Debt, v.StabilityFee, v.LeftoverCollateral, v.StackedTokens,
		v.StackerName, v.RevokedStacking, v.IsLiquidated, v.AuctionEnded, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert vault %d: %w", v.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vault %d", ErrStaleSnapshot, v.ID)
	}
	return nil
}

func (s *PostgresStore) GetVault(ctx context.Context, id int64) (*model.VaultRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+vaultColumns+` FROM vaults WHERE id = $1`, id)

	v, err := scanVault(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: vault %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get vault %d: %w", id, err)
	}
	return &v, nil
}

func (s *PostgresStore) ListVaultsByOwner(ctx context.Context, owner string) ([]model.VaultRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+vaultColumns+` FROM vaults WHERE owner = $1 ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanVaults(rows)
}

func (s *PostgresStore) ListVaultsByToken(ctx context.Context, token string) ([]model.VaultRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+vaultColumns+` FROM vaults
		 WHERE upper(collateral_token) = upper($1) AND NOT is_liquidated
		 ORDER BY id`, token)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanVaults(rows)
}

const collateralTypeColumns = `name, token, token_type, url,
	liquidation_ratio::TEXT, liquidation_penalty::TEXT,
	collateral_to_debt_ratio::TEXT, stability_fee_apy::TEXT,
	maximum_debt, total_debt, updated_at`

func (s *PostgresStore) UpsertCollateralType(ctx context.Context, ct *model.CollateralType) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO collateral_types (name, token, token_type, url,
		     liquidation_ratio, liquidation_penalty, collateral_to_debt_ratio, stability_fee_apy,
		     maximum_debt, total_debt, updated_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11)
		 ON CONFLICT (name) DO UPDATE SET
		     token = EXCLUDED.token,
		     token_type = EXCLUDED.token_type,
		     url = EXCLUDED.url,
		     liquidation_ratio = EXCLUDED.liquidation_ratio,
		     liquidation_penalty = EXCLUDED.liquidation_penalty,
		     collateral_to_debt_ratio = EXCLUDED.collateral_to_debt_ratio,
		     stability_fee_apy = EXCLUDED.stability_fee_apy,
		     maximum_debt = EXCLUDED.maximum_debt,
		     total_debt = EXCLUDED.total_debt,
		     updated_at = EXCLUDED.updated_at
		 WHERE collateral_types.updated_at <= EXCLUDED.updated_at`,
		ct.Name, ct.Token, ct.TokenType, ct.URL,
		ct.LiquidationRatio.String(), ct.LiquidationPenalty.String(),
		ct.CollateralToDebtRatio.String(), ct.StabilityFeeApy.String(),
		ct.MaximumDebt, ct.TotalDebt, ct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert collateral type %s: %w", ct.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: collateral type %s", ErrStaleSnapshot, ct.Name)
	}
	return nil
}

func (s *PostgresStore) GetCollateralType(ctx context.Context, name string) (*model.CollateralType, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+collateralTypeColumns+` FROM collateral_types WHERE name = $1`, name)

	ct, err := scanCollateralType(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: collateral type %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get collateral type %s: %w", name, err)
	}
	return &ct, nil
}

func (s *PostgresStore) ListCollateralTypes(ctx context.Context) ([]model.CollateralType, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+collateralTypeColumns+` FROM collateral_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []model.CollateralType
	for rows.Next() {
		ct, err := scanCollateralType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, ct)
	}
	return types, rows.Err()
}

type pgxRow interface {
	Scan(dest ...any) error
}

type pgxRows interface {
	pgxRow
	Next() bool
	Err() error
}

func scanVault(row pgxRow) (model.VaultRecord, error) {
	var v model.VaultRecord
	err := row.Scan(&v.ID, &v.Owner, &v.CollateralType, &v.CollateralToken,
		&v.Collateral, &v.Debt, &v.StabilityFee, &v.LeftoverCollateral, &v.StackedTokens,
		&v.StackerName, &v.RevokedStacking, &v.IsLiquidated, &v.AuctionEnded, &v.UpdatedAt)
	return v, err
}

func scanVaults(rows pgxRows) ([]model.VaultRecord, error) {
	var vaults []model.VaultRecord
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, err
		}
		vaults = append(vaults, v)
	}
	return vaults, rows.Err()
}

// scanCollateralType reads NUMERIC columns selected as ::TEXT into decimals.
func scanCollateralType(row pgxRow) (model.CollateralType, error) {
	var ct model.CollateralType
	var liqRatio, liqPenalty, minRatio, feeApy string

	if err := row.Scan(&ct.Name, &ct.Token, &ct.TokenType, &ct.URL,
		&liqRatio, &liqPenalty, &minRatio, &feeApy,
		&ct.MaximumDebt, &ct.TotalDebt, &ct.UpdatedAt); err != nil {
		return ct, err
	}

	var err error
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&ct.LiquidationRatio, liqRatio},
		{&ct.LiquidationPenalty, liqPenalty},
		{&ct.CollateralToDebtRatio, minRatio},
		{&ct.StabilityFeeApy, feeApy},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return ct, fmt.Errorf("collateral type %s: parse numeric %q: %w", ct.Name, f.src, err)
		}
	}
	return ct, nil
}
