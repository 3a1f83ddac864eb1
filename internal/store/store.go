// Package store defines the persistence interface for vault and collateral
// type snapshots. Implementations include PostgreSQL (source of truth),
// Redis (read-through cache), and in-memory (for testing).
//
// Snapshots are produced upstream from chain state. A snapshot older than
// the one already stored is rejected so replays never roll a vault back.
package store

import (
	"context"
	"errors"

	"github.com/vaultkit/vault-engine/internal/model"
)

var (
	// ErrNotFound is returned when a vault or collateral type does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrStaleSnapshot is returned when an upsert carries an UpdatedAt older
	// than the stored snapshot.
	ErrStaleSnapshot = errors.New("store: snapshot older than stored version")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Vault snapshots ---

	// UpsertVault stores a vault snapshot, replacing an older one.
	UpsertVault(ctx context.Context, v *model.VaultRecord) error

	// GetVault retrieves a vault by its on-chain ID.
	GetVault(ctx context.Context, id int64) (*model.VaultRecord, error)

	// ListVaultsByOwner returns all vaults of an owner address, by ID.
	ListVaultsByOwner(ctx context.Context, owner string) ([]model.VaultRecord, error)

	// ListVaultsByToken returns all open vaults backed by a collateral
	// token, by ID. Used by the health scan after a price update.
	ListVaultsByToken(ctx context.Context, token string) ([]model.VaultRecord, error)

	// --- Collateral type parameters ---

	// UpsertCollateralType stores collateral type parameters.
	UpsertCollateralType(ctx context.Context, ct *model.CollateralType) error

	// GetCollateralType retrieves a collateral type by name ("STX-A").
	GetCollateralType(ctx context.Context, name string) (*model.CollateralType, error)

	// ListCollateralTypes returns all collateral types, by name.
	ListCollateralTypes(ctx context.Context) ([]model.CollateralType, error)
}
