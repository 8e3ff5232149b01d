// Package hostsdir implements the hub's hosts directory: a pgx-backed
// lookup of known network identifiers to their connection endpoint and
// role, used to resolve bootstrap candidates and controller/auth-server
// addresses.
package hostsdir

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Type enumerates the host roles the directory tracks.
type Type uint8

const (
	TypeNode Type = iota
	TypeController
	TypeAuthenticator
	TypeClient
)

// Host is one directory entry.
type Host struct {
	ID   uint64
	Addr string
	Port uint16
	Type Type
}

// Directory resolves network identifiers against the hosts table.
type Directory struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a Directory backed by pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Directory {
	return &Directory{pool: pool, logger: logger.Named("hostsdir")}
}

// Get resolves a single identifier to its endpoint.
func (d *Directory) Get(ctx context.Context, id uint64) (Host, error) {
	var h Host
	h.ID = id
	err := d.pool.QueryRow(ctx,
		`SELECT addr, port, type FROM hosts WHERE id = $1`, id,
	).Scan(&h.Addr, &h.Port, &h.Type)
	if err != nil {
		return Host{}, fmt.Errorf("hostsdir: get %d: %w", id, err)
	}
	return h, nil
}

// List returns up to n identifiers of the given type, randomized, for
// bootstrap candidate selection.
func (d *Directory) List(ctx context.Context, t Type, n int) ([]uint64, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id FROM hosts WHERE type = $1 ORDER BY random() LIMIT $2`, t, n,
	)
	if err != nil {
		return nil, fmt.Errorf("hostsdir: list type=%d: %w", t, err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("hostsdir: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hostsdir: rows: %w", err)
	}
	return ids, nil
}

// Sample picks one identifier of the given type at random from a
// pre-fetched candidate set, used by basic/bootstrap when the caller
// already holds a List() result and wants to avoid round-tripping to
// the database on every request.
func Sample(candidates []uint64) (uint64, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// Reload is the hook the hub calls when the hosts file changes on disk.
// The directory is database-backed and keeps no in-memory cache, so
// Reload only logs the request and returns nil; it does not read the
// hosts file.
func (d *Directory) Reload(ctx context.Context) error {
	// The database-backed directory has no file-based cache to refresh;
	// this hook exists so the hub's reload dispatch table has a uniform
	// signature across database-backed and file-backed deployments.
	d.logger.Info("hosts directory reload requested; database-backed directory needs no action")
	return nil
}
