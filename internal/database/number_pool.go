package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

type numberPoolRepo struct {
	db *DB
}

// NewNumberPoolRepository creates a new NumberPoolRepository.
func NewNumberPoolRepository(db *DB) NumberPoolRepository {
	return &numberPoolRepo{db: db}
}

const poolColumns = `id, phone_number, tenant_id, assigned_at, created_at`

// Create adds a number to the pool, optionally already assigned.
func (r *numberPoolRepo) Create(ctx context.Context, n *models.PoolNumber) error {
	now := time.Now()
	var tenantID, assignedAt sql.NullInt64
	if n.TenantID != nil {
		tenantID = sql.NullInt64{Int64: *n.TenantID, Valid: true}
		assignedAt = sql.NullInt64{Int64: toMillis(now), Valid: true}
	}

	err := r.db.conn().queryRow(ctx,
		`INSERT INTO number_pool (phone_number, tenant_id, assigned_at, created_at)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		n.PhoneNumber, tenantID, assignedAt, toMillis(now),
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("inserting pool number: %w", err)
	}
	n.CreatedAt = fromMillis(toMillis(now))
	n.AssignedAt = nullMillis(assignedAt)
	return nil
}

// GetByID returns a pool number by ID.
func (r *numberPoolRepo) GetByID(ctx context.Context, id int64) (*models.PoolNumber, error) {
	n, err := scanPoolNumber(r.db.conn().queryRow(ctx,
		`SELECT `+poolColumns+` FROM number_pool WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying pool number by id: %w", err)
	}
	return n, nil
}

// GetByNumber returns the pool entry for a provider number.
func (r *numberPoolRepo) GetByNumber(ctx context.Context, number string) (*models.PoolNumber, error) {
	for _, form := range numberForms(number) {
		n, err := scanPoolNumber(r.db.conn().queryRow(ctx,
			`SELECT `+poolColumns+` FROM number_pool WHERE phone_number = ?`, form))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("querying pool number: %w", err)
		}
		return n, nil
	}
	return nil, nil
}

// List returns every pool number.
func (r *numberPoolRepo) List(ctx context.Context) ([]models.PoolNumber, error) {
	rows, err := r.db.conn().query(ctx, `SELECT `+poolColumns+` FROM number_pool ORDER BY phone_number`)
	if err != nil {
		return nil, fmt.Errorf("querying pool numbers: %w", err)
	}
	defer rows.Close()

	var nums []models.PoolNumber
	for rows.Next() {
		n, err := scanPoolNumber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning pool number row: %w", err)
		}
		nums = append(nums, *n)
	}
	return nums, rows.Err()
}

// Assign gives a pool number to a tenant.
func (r *numberPoolRepo) Assign(ctx context.Context, id, tenantID int64) error {
	_, err := r.db.conn().exec(ctx,
		`UPDATE number_pool SET tenant_id = ?, assigned_at = ? WHERE id = ?`,
		tenantID, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("assigning pool number: %w", err)
	}
	return nil
}

// Release returns a pool number to the unassigned set.
func (r *numberPoolRepo) Release(ctx context.Context, id int64) error {
	_, err := r.db.conn().exec(ctx,
		`UPDATE number_pool SET tenant_id = NULL, assigned_at = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("releasing pool number: %w", err)
	}
	return nil
}

// Delete removes a number from the pool.
func (r *numberPoolRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.conn().exec(ctx, `DELETE FROM number_pool WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting pool number: %w", err)
	}
	return nil
}

func scanPoolNumber(s scanner) (*models.PoolNumber, error) {
	var n models.PoolNumber
	var tenantID, assignedAt sql.NullInt64
	var created int64
	if err := s.Scan(&n.ID, &n.PhoneNumber, &tenantID, &assignedAt, &created); err != nil {
		return nil, err
	}
	n.TenantID = nullInt64(tenantID)
	n.AssignedAt = nullMillis(assignedAt)
	n.CreatedAt = fromMillis(created)
	return &n, nil
}
