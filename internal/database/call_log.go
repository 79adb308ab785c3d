package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
	"github.com/google/uuid"
)

type callLogRepo struct {
	db *DB
}

// NewCallLogRepository creates a new CallLogRepository.
func NewCallLogRepository(db *DB) CallLogRepository {
	return &callLogRepo{db: db}
}

// Create inserts a call log entry, assigning a UUID when ID is empty.
func (r *callLogRepo) Create(ctx context.Context, l *models.CallLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	var tenantID sql.NullInt64
	if l.TenantID != nil {
		tenantID = sql.NullInt64{Int64: *l.TenantID, Valid: true}
	}

	_, err := r.db.conn().exec(ctx,
		`INSERT INTO call_logs (id, call_sid, tenant_id, caller_number, dialed_number, outcome, detail, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.CallSID, tenantID, l.CallerNumber, l.DialedNumber, l.Outcome, l.Detail, l.Attempts, toMillis(l.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting call log: %w", err)
	}
	return nil
}

// ListByTenant returns the most recent call logs of a tenant.
func (r *callLogRepo) ListByTenant(ctx context.Context, tenantID int64, limit int) ([]models.CallLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.conn().query(ctx,
		`SELECT id, call_sid, tenant_id, caller_number, dialed_number, outcome, detail, attempts, created_at
		 FROM call_logs WHERE tenant_id = ?
		 ORDER BY created_at DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying call logs: %w", err)
	}
	defer rows.Close()

	var logs []models.CallLog
	for rows.Next() {
		var l models.CallLog
		var tid sql.NullInt64
		var created int64
		if err := rows.Scan(&l.ID, &l.CallSID, &tid, &l.CallerNumber, &l.DialedNumber,
			&l.Outcome, &l.Detail, &l.Attempts, &created); err != nil {
			return nil, fmt.Errorf("scanning call log row: %w", err)
		}
		l.TenantID = nullInt64(tid)
		l.CreatedAt = fromMillis(created)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CountByOutcome returns the number of logged decisions per outcome.
func (r *callLogRepo) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.conn().query(ctx, `SELECT outcome, COUNT(*) FROM call_logs GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("counting call outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
