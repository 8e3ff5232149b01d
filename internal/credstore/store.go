// Package credstore implements the hub's credential store: a pgx-backed
// lookup of identity -> SRP salt/verifier/group, satisfying
// internal/auth.CredentialStore. Lookups against an unknown identity are
// side-effect-free, matching the contract the authenticator's fake path
// depends on.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wanhive/overlay-hub/internal/auth"
)

// Store resolves SRP credentials from the credentials table.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Store backed by pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{pool: pool, logger: logger.Named("credstore")}
}

// Lookup implements auth.CredentialStore.
func (s *Store) Lookup(identity string) (salt, verifier *big.Int, group uint8, err error) {
	ctx := context.Background()
	var saltBytes, verifierBytes []byte
	err = s.pool.QueryRow(ctx,
		`SELECT salt, verifier, host_group FROM credentials WHERE identity = $1`, identity,
	).Scan(&saltBytes, &verifierBytes, &group)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, 0, auth.ErrNotFound
	}
	if err != nil {
		return nil, nil, 0, fmt.Errorf("credstore: lookup %q: %w", identity, err)
	}
	return new(big.Int).SetBytes(saltBytes), new(big.Int).SetBytes(verifierBytes), group, nil
}

// Provision inserts or replaces an identity's SRP credentials, used by
// the out-of-band enrollment tooling rather than the hub's request path.
func (s *Store) Provision(ctx context.Context, identity string, salt, verifier *big.Int, group uint8) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (identity, salt, verifier, host_group)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (identity) DO UPDATE SET salt = $2, verifier = $3, host_group = $4`,
		identity, salt.Bytes(), verifier.Bytes(), group,
	)
	if err != nil {
		return fmt.Errorf("credstore: provision %q: %w", identity, err)
	}
	return nil
}

// Revoke removes an identity's credentials, rejecting future identify
// requests for it.
func (s *Store) Revoke(ctx context.Context, identity string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE identity = $1`, identity)
	if err != nil {
		return fmt.Errorf("credstore: revoke %q: %w", identity, err)
	}
	return nil
}
