package screening

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/callbunker/callbunker/internal/database/models"
)

// TenantStore looks tenants up by ID or phone number. Numbers are canonical
// digits.
type TenantStore interface {
	GetByID(ctx context.Context, id int64) (*models.Tenant, error)
	GetByScreeningNumber(ctx context.Context, number string) (*models.Tenant, error)
	GetByForwardTo(ctx context.Context, number string) (*models.Tenant, error)
}

// PoolStore finds dedicated provider numbers.
type PoolStore interface {
	GetByNumber(ctx context.Context, number string) (*models.PoolNumber, error)
}

// Router resolves which tenant an inbound call belongs to.
type Router struct {
	tenants TenantStore
	pool    PoolStore
	logger  *slog.Logger
}

// NewRouter creates a Router. pool may be nil when no dedicated numbers are
// provisioned.
func NewRouter(tenants TenantStore, pool PoolStore, logger *slog.Logger) *Router {
	return &Router{
		tenants: tenants,
		pool:    pool,
		logger:  logger.With("subsystem", "router"),
	}
}

// Resolve finds the active tenant for call, trying in order:
//
//  1. a pool number assigned to a tenant matching the dialed number
//  2. the ForwardedFrom number as a tenant's screening number or real line
//  3. without ForwardedFrom, the caller number as a tenant's screening
//     number (carrier forwarding replaces caller ID with the tenant's line)
//  4. the dialed number as a tenant's screening number
//
// It returns ErrUnknownTenant when nothing matches and ErrTenantInactive
// when the match is disabled.
func (r *Router) Resolve(ctx context.Context, call InboundCall) (*models.Tenant, error) {
	to := NormalizeDigits(call.To)
	from := NormalizeDigits(call.From)
	forwarded := NormalizeDigits(call.ForwardedFrom)

	t, step, err := r.lookup(ctx, to, from, forwarded)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("to=%s forwarded_from=%s: %w", to, forwarded, ErrUnknownTenant)
	}
	if !t.Active {
		return nil, fmt.Errorf("tenant %d: %w", t.ID, ErrTenantInactive)
	}

	r.logger.Debug("tenant resolved", "tenant_id", t.ID, "step", step)
	return t, nil
}

// Tenant loads a tenant by ID with the same active check as Resolve.
func (r *Router) Tenant(ctx context.Context, id int64) (*models.Tenant, error) {
	t, err := r.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading tenant %d: %w", id, err)
	}
	if t == nil {
		return nil, fmt.Errorf("tenant %d: %w", id, ErrUnknownTenant)
	}
	if !t.Active {
		return nil, fmt.Errorf("tenant %d: %w", id, ErrTenantInactive)
	}
	return t, nil
}

func (r *Router) lookup(ctx context.Context, to, from, forwarded string) (*models.Tenant, string, error) {
	if r.pool != nil && to != "" {
		n, err := r.pool.GetByNumber(ctx, to)
		if err != nil {
			return nil, "", fmt.Errorf("looking up pool number: %w", err)
		}
		if n != nil && n.TenantID != nil {
			t, err := r.tenants.GetByID(ctx, *n.TenantID)
			if err != nil {
				return nil, "", fmt.Errorf("loading pool tenant: %w", err)
			}
			if t != nil {
				return t, "pool", nil
			}
		}
	}

	if forwarded != "" {
		t, err := r.tenants.GetByScreeningNumber(ctx, forwarded)
		if err != nil {
			return nil, "", fmt.Errorf("looking up forwarded-from tenant: %w", err)
		}
		if t != nil {
			return t, "forwarded_from", nil
		}
		t, err = r.tenants.GetByForwardTo(ctx, forwarded)
		if err != nil {
			return nil, "", fmt.Errorf("looking up forwarded-from real line: %w", err)
		}
		if t != nil {
			return t, "forwarded_from_line", nil
		}
	} else if from != "" {
		t, err := r.tenants.GetByScreeningNumber(ctx, from)
		if err != nil {
			return nil, "", fmt.Errorf("looking up caller as tenant: %w", err)
		}
		if t != nil {
			return t, "caller", nil
		}
	}

	if to != "" {
		t, err := r.tenants.GetByScreeningNumber(ctx, to)
		if err != nil {
			return nil, "", fmt.Errorf("looking up dialed number: %w", err)
		}
		if t != nil {
			return t, "dialed", nil
		}
	}

	return nil, "", nil
}
