// Package cache keeps hot tenant lookups in Redis so inbound webhooks do
// not hit the database on every call leg.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/callbunker/callbunker/internal/database"
	"github.com/callbunker/callbunker/internal/database/models"
)

const keyPrefix = "callbunker:tenant:"

// Connect creates a Redis client from a redis:// URL or a host:port
// address and checks it with a ping.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// TenantRepository is a read-through cache in front of another
// TenantRepository. Lookups that miss are cached for ttl; writes drop every
// key that could refer to the changed tenant. Redis failures fall back to
// the underlying repository.
type TenantRepository struct {
	next   database.TenantRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ database.TenantRepository = (*TenantRepository)(nil)

// NewTenantRepository wraps next with a Redis cache.
func NewTenantRepository(next database.TenantRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *TenantRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &TenantRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With("subsystem", "tenant-cache"),
	}
}

func idKey(id int64) string            { return keyPrefix + "id:" + strconv.FormatInt(id, 10) }
func screeningKey(number string) string { return keyPrefix + "screening:" + number }
func forwardKey(number string) string   { return keyPrefix + "forward:" + number }

func (c *TenantRepository) GetByID(ctx context.Context, id int64) (*models.Tenant, error) {
	return c.readThrough(ctx, idKey(id), func() (*models.Tenant, error) {
		return c.next.GetByID(ctx, id)
	})
}

func (c *TenantRepository) GetByScreeningNumber(ctx context.Context, number string) (*models.Tenant, error) {
	return c.readThrough(ctx, screeningKey(number), func() (*models.Tenant, error) {
		return c.next.GetByScreeningNumber(ctx, number)
	})
}

func (c *TenantRepository) GetByForwardTo(ctx context.Context, number string) (*models.Tenant, error) {
	return c.readThrough(ctx, forwardKey(number), func() (*models.Tenant, error) {
		return c.next.GetByForwardTo(ctx, number)
	})
}

func (c *TenantRepository) List(ctx context.Context) ([]models.Tenant, error) {
	return c.next.List(ctx)
}

func (c *TenantRepository) Count(ctx context.Context) (int64, error) {
	return c.next.Count(ctx)
}

func (c *TenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	return c.next.Create(ctx, t)
}

// Update writes through and invalidates keys for both the old and new
// phone numbers.
func (c *TenantRepository) Update(ctx context.Context, t *models.Tenant) error {
	old, err := c.next.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	if err := c.next.Update(ctx, t); err != nil {
		return err
	}
	c.invalidate(ctx, t, old)
	return nil
}

func (c *TenantRepository) Delete(ctx context.Context, id int64) error {
	old, err := c.next.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.next.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, &models.Tenant{ID: id}, old)
	return nil
}

func (c *TenantRepository) readThrough(ctx context.Context, key string, load func() (*models.Tenant, error)) (*models.Tenant, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t models.Tenant
		if jsonErr := json.Unmarshal(raw, &t); jsonErr == nil {
			return &t, nil
		}
		c.logger.Warn("discarding undecodable cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("tenant cache read failed", "key", key, "error", err)
	}

	t, err := load()
	if err != nil || t == nil {
		return t, err
	}

	if data, err := json.Marshal(t); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("tenant cache write failed", "key", key, "error", err)
		}
	}
	return t, nil
}

func (c *TenantRepository) invalidate(ctx context.Context, tenants ...*models.Tenant) {
	var keys []string
	for _, t := range tenants {
		if t == nil {
			continue
		}
		keys = append(keys, idKey(t.ID))
		for _, n := range lookupForms(t.ScreeningNumber) {
			keys = append(keys, screeningKey(n))
		}
		for _, n := range lookupForms(t.ForwardTo) {
			keys = append(keys, forwardKey(n))
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Error("tenant cache invalidation failed", "keys", len(keys), "error", err)
	}
}

// lookupForms lists the number spellings a lookup may have been cached
// under.
func lookupForms(number string) []string {
	if number == "" {
		return nil
	}
	digits := strings.TrimPrefix(number, "+")
	return []string{digits, "+" + digits}
}
