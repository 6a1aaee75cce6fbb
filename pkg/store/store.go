// Package store persists transfer snapshots in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/chainsafe/bridge-tracker/pkg/identifier"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

// ErrTransferNotFound is returned when no snapshot is stored under a key.
var ErrTransferNotFound = errors.New("transfer not found")

const maxPageSize = 100

// Page selects a slice of the history, newest first.
type Page struct {
	Offset int
	Limit  int
	// Route filters by route kind when set.
	Route string
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the transfer store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

// Save inserts or replaces the snapshot of one transfer.
func (s *pgStore) Save(ctx context.Context, snap transfer.Snapshot) error {
	key := identifier.Tuple{Source: snap.Source, Destination: snap.Destination, ID: snap.ID}.Key()
	dao, err := toTransferDao(key, snap)
	if err != nil {
		return err
	}

	_, err = s.db.NewInsert().
		Model(dao).
		On("CONFLICT (key) DO UPDATE").
		Set("route = EXCLUDED.route").
		Set("transfer_status = EXCLUDED.transfer_status").
		Set("event_status = EXCLUDED.event_status").
		Set("release_status = EXCLUDED.release_status").
		Set("terminal = EXCLUDED.terminal").
		Set("snapshot = EXCLUDED.snapshot").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save transfer %s: %w", key, err)
	}
	return nil
}

// Get returns the stored snapshot of one transfer.
func (s *pgStore) Get(ctx context.Context, key string) (transfer.Snapshot, error) {
	dao := new(TransferDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transfer.Snapshot{}, ErrTransferNotFound
		}
		return transfer.Snapshot{}, fmt.Errorf("failed to get transfer: %w", err)
	}
	return fromTransferDao(dao)
}

// ListOpen returns up to limit unfinished transfers, most recently updated first.
func (s *pgStore) ListOpen(ctx context.Context, limit int) ([]transfer.Snapshot, error) {
	var daos []TransferDao
	query := s.db.NewSelect().
		Model(&daos).
		Where("terminal = ?", false).
		Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list open transfers: %w", err)
	}
	return decodeAll(daos)
}

// List returns one page of the history and the total number of matching transfers.
func (s *pgStore) List(ctx context.Context, page Page) ([]transfer.Snapshot, int, error) {
	limit := page.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	var daos []TransferDao
	query := s.db.NewSelect().
		Model(&daos).
		Order("updated_at DESC").
		Offset(max(page.Offset, 0)).
		Limit(limit)
	if page.Route != "" {
		query = query.Where("route = ?", page.Route)
	}

	total, err := query.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transfers: %w", err)
	}
	out, err := decodeAll(daos)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Delete removes the snapshot of one transfer.
func (s *pgStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*TransferDao)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete transfer: %w", err)
	}
	return nil
}

func decodeAll(daos []TransferDao) ([]transfer.Snapshot, error) {
	out := make([]transfer.Snapshot, 0, len(daos))
	for i := range daos {
		snap, err := fromTransferDao(&daos[i])
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
