package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

type tenantRepo struct {
	db *DB
}

// NewTenantRepository creates a new TenantRepository.
func NewTenantRepository(db *DB) TenantRepository {
	return &tenantRepo{db: db}
}

const tenantColumns = `id, screening_number, owner_label, email, forward_to, pin, passphrase,
	retry_limit, forward_mode, rate_limit_window_seconds, rate_limit_max_attempts,
	rate_limit_block_minutes, active, push_token, created_at, updated_at`

// Create inserts a new tenant and sets its ID and timestamps.
func (r *tenantRepo) Create(ctx context.Context, t *models.Tenant) error {
	now := time.Now()
	err := r.db.conn().queryRow(ctx,
		`INSERT INTO tenants (screening_number, owner_label, email, forward_to, pin, passphrase,
			retry_limit, forward_mode, rate_limit_window_seconds, rate_limit_max_attempts,
			rate_limit_block_minutes, active, push_token, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`,
		t.ScreeningNumber, t.OwnerLabel, t.Email, t.ForwardTo, t.PIN, t.Passphrase,
		t.RetryLimit, t.ForwardMode, t.RateLimitWindowSeconds, t.RateLimitMaxAttempts,
		t.RateLimitBlockMinutes, t.Active, t.PushToken, toMillis(now), toMillis(now),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("inserting tenant: %w", err)
	}
	t.CreatedAt = fromMillis(toMillis(now))
	t.UpdatedAt = t.CreatedAt
	return nil
}

// GetByID returns a tenant by ID, or nil if not found.
func (r *tenantRepo) GetByID(ctx context.Context, id int64) (*models.Tenant, error) {
	t, err := r.scanOne(r.db.conn().queryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("querying tenant by id: %w", err)
	}
	return t, nil
}

// GetByScreeningNumber returns the tenant that owns the screening number.
func (r *tenantRepo) GetByScreeningNumber(ctx context.Context, number string) (*models.Tenant, error) {
	for _, form := range numberForms(number) {
		t, err := r.scanOne(r.db.conn().queryRow(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE screening_number = ?`, form))
		if err != nil {
			return nil, fmt.Errorf("querying tenant by screening number: %w", err)
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}

// GetByForwardTo returns the oldest tenant whose real line is number.
func (r *tenantRepo) GetByForwardTo(ctx context.Context, number string) (*models.Tenant, error) {
	for _, form := range numberForms(number) {
		t, err := r.scanOne(r.db.conn().queryRow(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE forward_to = ? ORDER BY id LIMIT 1`, form))
		if err != nil {
			return nil, fmt.Errorf("querying tenant by forward number: %w", err)
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}

// List returns all tenants ordered by ID.
func (r *tenantRepo) List(ctx context.Context) ([]models.Tenant, error) {
	rows, err := r.db.conn().query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tenant row: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// Update modifies an existing tenant.
func (r *tenantRepo) Update(ctx context.Context, t *models.Tenant) error {
	now := time.Now()
	_, err := r.db.conn().exec(ctx,
		`UPDATE tenants SET screening_number = ?, owner_label = ?, email = ?, forward_to = ?,
			pin = ?, passphrase = ?, retry_limit = ?, forward_mode = ?,
			rate_limit_window_seconds = ?, rate_limit_max_attempts = ?, rate_limit_block_minutes = ?,
			active = ?, push_token = ?, updated_at = ?
		 WHERE id = ?`,
		t.ScreeningNumber, t.OwnerLabel, t.Email, t.ForwardTo,
		t.PIN, t.Passphrase, t.RetryLimit, t.ForwardMode,
		t.RateLimitWindowSeconds, t.RateLimitMaxAttempts, t.RateLimitBlockMinutes,
		t.Active, t.PushToken, toMillis(now), t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating tenant: %w", err)
	}
	t.UpdatedAt = fromMillis(toMillis(now))
	return nil
}

// Delete removes a tenant. Trust, ledger, voicemail and call log rows
// cascade; pool numbers are released.
func (r *tenantRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.conn().exec(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	return nil
}

// Count returns the number of tenants.
func (r *tenantRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.conn().queryRow(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting tenants: %w", err)
	}
	return count, nil
}

func (r *tenantRepo) scanOne(row *sql.Row) (*models.Tenant, error) {
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(s scanner) (*models.Tenant, error) {
	var t models.Tenant
	var created, updated int64
	err := s.Scan(&t.ID, &t.ScreeningNumber, &t.OwnerLabel, &t.Email, &t.ForwardTo,
		&t.PIN, &t.Passphrase, &t.RetryLimit, &t.ForwardMode,
		&t.RateLimitWindowSeconds, &t.RateLimitMaxAttempts, &t.RateLimitBlockMinutes,
		&t.Active, &t.PushToken, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return &t, nil
}
