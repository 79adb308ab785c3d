package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

type adminUserRepo struct {
	db *DB
}

// NewAdminUserRepository creates a new AdminUserRepository.
func NewAdminUserRepository(db *DB) AdminUserRepository {
	return &adminUserRepo{db: db}
}

// Create inserts a new admin user.
func (r *adminUserRepo) Create(ctx context.Context, user *models.AdminUser) error {
	now := time.Now()
	err := r.db.conn().queryRow(ctx,
		`INSERT INTO admin_users (username, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		user.Username, user.PasswordHash, toMillis(now), toMillis(now),
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("inserting admin user: %w", err)
	}
	user.CreatedAt = fromMillis(toMillis(now))
	user.UpdatedAt = user.CreatedAt
	return nil
}

// GetByID returns an admin user by ID.
func (r *adminUserRepo) GetByID(ctx context.Context, id int64) (*models.AdminUser, error) {
	u, err := scanAdminUser(r.db.conn().queryRow(ctx,
		`SELECT id, username, password_hash, created_at, updated_at FROM admin_users WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("querying admin user by id: %w", err)
	}
	return u, nil
}

// GetByUsername returns an admin user by username.
func (r *adminUserRepo) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	u, err := scanAdminUser(r.db.conn().queryRow(ctx,
		`SELECT id, username, password_hash, created_at, updated_at FROM admin_users WHERE username = ?`, username))
	if err != nil {
		return nil, fmt.Errorf("querying admin user by username: %w", err)
	}
	return u, nil
}

// Count returns the total number of admin users.
func (r *adminUserRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.conn().queryRow(ctx, `SELECT COUNT(*) FROM admin_users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting admin users: %w", err)
	}
	return count, nil
}

func scanAdminUser(row *sql.Row) (*models.AdminUser, error) {
	var u models.AdminUser
	var created, updated int64
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}
