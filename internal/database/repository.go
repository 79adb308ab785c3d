package database

import (
	"context"
	"time"

	"github.com/callbunker/callbunker/internal/database/models"
)

// Phone number arguments are canonical digits. Lookups also match rows
// stored in the legacy "+"-prefixed form.

// TenantRepository manages screening tenants.
type TenantRepository interface {
	Create(ctx context.Context, t *models.Tenant) error
	GetByID(ctx context.Context, id int64) (*models.Tenant, error)
	GetByScreeningNumber(ctx context.Context, number string) (*models.Tenant, error)
	GetByForwardTo(ctx context.Context, number string) (*models.Tenant, error)
	List(ctx context.Context) ([]models.Tenant, error)
	Update(ctx context.Context, t *models.Tenant) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
}

// NumberPoolRepository manages dedicated provider numbers.
type NumberPoolRepository interface {
	Create(ctx context.Context, n *models.PoolNumber) error
	GetByID(ctx context.Context, id int64) (*models.PoolNumber, error)
	GetByNumber(ctx context.Context, number string) (*models.PoolNumber, error)
	List(ctx context.Context) ([]models.PoolNumber, error)
	Assign(ctx context.Context, id, tenantID int64) error
	Release(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// TrustRepository manages per-tenant trusted callers.
type TrustRepository interface {
	Get(ctx context.Context, tenantID int64, caller string) (*models.TrustEntry, error)
	List(ctx context.Context, tenantID int64) ([]models.TrustEntry, error)
	// AddIfAbsent inserts the entry unless the caller is already trusted.
	// It reports whether a row was written.
	AddIfAbsent(ctx context.Context, e *models.TrustEntry) (bool, error)
	Delete(ctx context.Context, tenantID, id int64) error
	Count(ctx context.Context) (int64, error)
}

// FailureOutcome is the result of recording one failed attempt.
type FailureOutcome struct {
	// Failures is the number of failures inside the window, including this one.
	Failures int
	// Block is set when this failure reached the threshold.
	Block *models.BlockRecord
}

// RateLimitPolicy is the per-tenant failure threshold.
type RateLimitPolicy struct {
	Window      time.Duration
	MaxAttempts int
	BlockFor    time.Duration
}

// LedgerRepository tracks failed attempts and temporary blocks.
type LedgerRepository interface {
	// ActiveBlock returns the caller's unexpired block, deleting an expired
	// one as a side effect.
	ActiveBlock(ctx context.Context, tenantID int64, caller string, now time.Time) (*models.BlockRecord, error)
	RecordFailure(ctx context.Context, tenantID int64, caller string, now time.Time, policy RateLimitPolicy) (FailureOutcome, error)
	// ClearCaller removes the caller's failures and block together.
	ClearCaller(ctx context.Context, tenantID int64, caller string) error
	Unblock(ctx context.Context, tenantID int64, caller string) (bool, error)
	ClearFailures(ctx context.Context, tenantID int64) (int64, error)
	ListBlocks(ctx context.Context, tenantID int64, now time.Time) ([]models.BlockRecord, error)
	CountFailures(ctx context.Context, tenantID int64, caller string, since time.Time) (int, error)
	CountActiveBlocks(ctx context.Context, now time.Time) (int64, error)
	// Prune deletes expired blocks and failures older than failureCutoff.
	Prune(ctx context.Context, now, failureCutoff time.Time) (blocks, failures int64, err error)
}

// CallLogRepository stores per-call screening decisions.
type CallLogRepository interface {
	Create(ctx context.Context, l *models.CallLog) error
	ListByTenant(ctx context.Context, tenantID int64, limit int) ([]models.CallLog, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

// VoicemailRepository stores voicemail recordings left for tenants.
type VoicemailRepository interface {
	Create(ctx context.Context, m *models.VoicemailMessage) error
	SetTranscription(ctx context.Context, recordingSID, text string) (bool, error)
	ListByTenant(ctx context.Context, tenantID int64, limit int) ([]models.VoicemailMessage, error)
}

// AdminUserRepository manages management API operators.
type AdminUserRepository interface {
	Create(ctx context.Context, user *models.AdminUser) error
	GetByID(ctx context.Context, id int64) (*models.AdminUser, error)
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	Count(ctx context.Context) (int64, error)
}
