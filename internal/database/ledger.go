package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

type ledgerRepo struct {
	db *DB
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(db *DB) LedgerRepository {
	return &ledgerRepo{db: db}
}

// ActiveBlock returns the caller's block if it is still in force. An expired
// block is deleted and nil is returned.
func (r *ledgerRepo) ActiveBlock(ctx context.Context, tenantID int64, caller string, now time.Time) (*models.BlockRecord, error) {
	c := r.db.conn()
	for _, form := range callerForms(caller) {
		b, err := scanBlock(c.queryRow(ctx,
			`SELECT tenant_id, caller_number, unblock_at, created_at
			 FROM block_records WHERE tenant_id = ? AND caller_number = ?`, tenantID, form))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("querying block: %w", err)
		}

		if now.Before(b.UnblockAt) {
			return b, nil
		}

		if _, err := c.exec(ctx,
			`DELETE FROM block_records WHERE tenant_id = ? AND caller_number = ? AND unblock_at <= ?`,
			tenantID, form, toMillis(now)); err != nil {
			return nil, fmt.Errorf("deleting expired block: %w", err)
		}
	}
	return nil, nil
}

// RecordFailure appends a failure, counts failures inside the policy window
// and blocks the caller once the threshold is reached. All three steps run
// in one transaction.
func (r *ledgerRepo) RecordFailure(ctx context.Context, tenantID int64, caller string, now time.Time, policy RateLimitPolicy) (FailureOutcome, error) {
	var out FailureOutcome
	err := r.db.withTx(ctx, func(c conn) error {
		if _, err := c.exec(ctx,
			`INSERT INTO failure_records (tenant_id, caller_number, occurred_at) VALUES (?, ?, ?)`,
			tenantID, caller, toMillis(now)); err != nil {
			return fmt.Errorf("inserting failure: %w", err)
		}

		in, args := callerIn(tenantID, caller)
		since := now.Add(-policy.Window)
		if err := c.queryRow(ctx,
			`SELECT COUNT(*) FROM failure_records
			 WHERE tenant_id = ? AND caller_number `+in+` AND occurred_at >= ?`,
			append(args, toMillis(since))...).Scan(&out.Failures); err != nil {
			return fmt.Errorf("counting failures: %w", err)
		}

		if policy.MaxAttempts <= 0 || out.Failures < policy.MaxAttempts {
			return nil
		}

		block := &models.BlockRecord{
			TenantID:     tenantID,
			CallerNumber: caller,
			UnblockAt:    fromMillis(toMillis(now.Add(policy.BlockFor))),
			CreatedAt:    fromMillis(toMillis(now)),
		}
		if _, err := c.exec(ctx,
			`INSERT INTO block_records (tenant_id, caller_number, unblock_at, created_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (tenant_id, caller_number)
			 DO UPDATE SET unblock_at = excluded.unblock_at, created_at = excluded.created_at`,
			tenantID, caller, toMillis(block.UnblockAt), toMillis(block.CreatedAt)); err != nil {
			return fmt.Errorf("upserting block: %w", err)
		}
		out.Block = block
		return nil
	})
	if err != nil {
		return FailureOutcome{}, fmt.Errorf("recording failure: %w", err)
	}
	return out, nil
}

// ClearCaller forgets the caller's failure history and any block.
func (r *ledgerRepo) ClearCaller(ctx context.Context, tenantID int64, caller string) error {
	in, args := callerIn(tenantID, caller)
	err := r.db.withTx(ctx, func(c conn) error {
		if _, err := c.exec(ctx,
			`DELETE FROM failure_records WHERE tenant_id = ? AND caller_number `+in,
			args...); err != nil {
			return fmt.Errorf("deleting failures: %w", err)
		}
		if _, err := c.exec(ctx,
			`DELETE FROM block_records WHERE tenant_id = ? AND caller_number `+in,
			args...); err != nil {
			return fmt.Errorf("deleting block: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clearing caller ledger: %w", err)
	}
	return nil
}

// Unblock removes a caller's block and reports whether one existed.
func (r *ledgerRepo) Unblock(ctx context.Context, tenantID int64, caller string) (bool, error) {
	in, args := callerIn(tenantID, caller)
	res, err := r.db.conn().exec(ctx,
		`DELETE FROM block_records WHERE tenant_id = ? AND caller_number `+in, args...)
	if err != nil {
		return false, fmt.Errorf("deleting block: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n > 0, nil
}

// ClearFailures deletes every failure record of a tenant.
func (r *ledgerRepo) ClearFailures(ctx context.Context, tenantID int64) (int64, error) {
	res, err := r.db.conn().exec(ctx, `DELETE FROM failure_records WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("deleting failures: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return n, nil
}

// ListBlocks returns a tenant's blocks that are still in force.
func (r *ledgerRepo) ListBlocks(ctx context.Context, tenantID int64, now time.Time) ([]models.BlockRecord, error) {
	rows, err := r.db.conn().query(ctx,
		`SELECT tenant_id, caller_number, unblock_at, created_at
		 FROM block_records WHERE tenant_id = ? AND unblock_at > ?
		 ORDER BY unblock_at`, tenantID, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("querying blocks: %w", err)
	}
	defer rows.Close()

	var blocks []models.BlockRecord
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning block row: %w", err)
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}

// CountFailures returns the caller's failures at or after since.
func (r *ledgerRepo) CountFailures(ctx context.Context, tenantID int64, caller string, since time.Time) (int, error) {
	var n int
	in, args := callerIn(tenantID, caller)
	err := r.db.conn().queryRow(ctx,
		`SELECT COUNT(*) FROM failure_records
		 WHERE tenant_id = ? AND caller_number `+in+` AND occurred_at >= ?`,
		append(args, toMillis(since))...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting failures: %w", err)
	}
	return n, nil
}

// CountActiveBlocks returns the number of blocks in force across tenants.
func (r *ledgerRepo) CountActiveBlocks(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.db.conn().queryRow(ctx,
		`SELECT COUNT(*) FROM block_records WHERE unblock_at > ?`, toMillis(now)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active blocks: %w", err)
	}
	return n, nil
}

// Prune deletes expired blocks and failure records older than failureCutoff.
func (r *ledgerRepo) Prune(ctx context.Context, now, failureCutoff time.Time) (int64, int64, error) {
	c := r.db.conn()

	res, err := c.exec(ctx, `DELETE FROM block_records WHERE unblock_at <= ?`, toMillis(now))
	if err != nil {
		return 0, 0, fmt.Errorf("pruning blocks: %w", err)
	}
	blocks, _ := res.RowsAffected()

	res, err = c.exec(ctx, `DELETE FROM failure_records WHERE occurred_at < ?`, toMillis(failureCutoff))
	if err != nil {
		return blocks, 0, fmt.Errorf("pruning failures: %w", err)
	}
	failures, _ := res.RowsAffected()

	return blocks, failures, nil
}

// callerForms is numberForms for ledger keys. A withheld caller is stored
// under the empty string and has no legacy form.
func callerForms(caller string) []string {
	if forms := numberForms(caller); forms != nil {
		return forms
	}
	return []string{caller}
}

// callerIn returns an "IN (...)" clause over the caller's stored forms and
// the arguments for "tenant_id = ? AND caller_number IN (...)".
func callerIn(tenantID int64, caller string) (string, []any) {
	forms := callerForms(caller)
	args := make([]any, 0, len(forms)+2)
	args = append(args, tenantID)
	for _, f := range forms {
		args = append(args, f)
	}
	return "IN (?" + strings.Repeat(", ?", len(forms)-1) + ")", args
}

func scanBlock(s scanner) (*models.BlockRecord, error) {
	var b models.BlockRecord
	var unblock, created int64
	if err := s.Scan(&b.TenantID, &b.CallerNumber, &unblock, &created); err != nil {
		return nil, err
	}
	b.UnblockAt = fromMillis(unblock)
	b.CreatedAt = fromMillis(created)
	return &b, nil
}
