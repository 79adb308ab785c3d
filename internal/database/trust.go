package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

type trustRepo struct {
	db *DB
}

// NewTrustRepository creates a new TrustRepository.
func NewTrustRepository(db *DB) TrustRepository {
	return &trustRepo{db: db}
}

const trustColumns = `id, tenant_id, caller_number, custom_pin, allows_verbal, source, created_at`

// Get returns the trust entry for caller, or nil if the caller is not trusted.
func (r *trustRepo) Get(ctx context.Context, tenantID int64, caller string) (*models.TrustEntry, error) {
	for _, form := range numberForms(caller) {
		e, err := scanTrustEntry(r.db.conn().queryRow(ctx,
			`SELECT `+trustColumns+` FROM trust_entries WHERE tenant_id = ? AND caller_number = ?`,
			tenantID, form))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("querying trust entry: %w", err)
		}
		return e, nil
	}
	return nil, nil
}

// List returns a tenant's trusted callers, newest first.
func (r *trustRepo) List(ctx context.Context, tenantID int64) ([]models.TrustEntry, error) {
	rows, err := r.db.conn().query(ctx,
		`SELECT `+trustColumns+` FROM trust_entries WHERE tenant_id = ? ORDER BY created_at DESC, id DESC`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying trust entries: %w", err)
	}
	defer rows.Close()

	var entries []models.TrustEntry
	for rows.Next() {
		e, err := scanTrustEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trust entry row: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// AddIfAbsent inserts e unless (tenant, caller) already exists. Concurrent
// inserts for the same caller resolve to a single row.
func (r *trustRepo) AddIfAbsent(ctx context.Context, e *models.TrustEntry) (bool, error) {
	if e.Source == "" {
		e.Source = models.TrustSourceAuto
	}
	var customPIN sql.NullString
	if e.CustomPIN != "" {
		customPIN = sql.NullString{String: e.CustomPIN, Valid: true}
	}
	now := time.Now()

	var id int64
	err := r.db.conn().queryRow(ctx,
		`INSERT INTO trust_entries (tenant_id, caller_number, custom_pin, allows_verbal, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, caller_number) DO NOTHING
		 RETURNING id`,
		e.TenantID, e.CallerNumber, customPIN, e.AllowsVerbal, e.Source, toMillis(now),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inserting trust entry: %w", err)
	}
	e.ID = id
	e.CreatedAt = fromMillis(toMillis(now))
	return true, nil
}

// Delete removes a trust entry belonging to tenantID.
func (r *trustRepo) Delete(ctx context.Context, tenantID, id int64) error {
	_, err := r.db.conn().exec(ctx,
		`DELETE FROM trust_entries WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("deleting trust entry: %w", err)
	}
	return nil
}

// Count returns the number of trust entries across all tenants.
func (r *trustRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.conn().queryRow(ctx, `SELECT COUNT(*) FROM trust_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting trust entries: %w", err)
	}
	return count, nil
}

func scanTrustEntry(s scanner) (*models.TrustEntry, error) {
	var e models.TrustEntry
	var customPIN sql.NullString
	var created int64
	if err := s.Scan(&e.ID, &e.TenantID, &e.CallerNumber, &customPIN, &e.AllowsVerbal, &e.Source, &created); err != nil {
		return nil, err
	}
	e.CustomPIN = customPIN.String
	e.CreatedAt = fromMillis(created)
	return &e, nil
}
