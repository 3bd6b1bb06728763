package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// New creates a new cache based on configuration.
// For Community tier: returns LRU cache.
// For Pro tier with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// For Pro tier without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

var errOwnerRequired = fmt.Errorf("%w: owner ID is required", domain.ErrInvalidInput)

func reportKey(scanID string) string {
	return "scan:" + scanID
}

type byteStore interface {
	Get(ctx context.Context, ownerID string, key string) ([]byte, error)
	Set(ctx context.Context, ownerID string, key string, value []byte, ttl time.Duration) error
}

func loadReport(ctx context.Context, s byteStore, ownerID, scanID string) (*domain.ScanReport, error) {
	data, err := s.Get(ctx, ownerID, reportKey(scanID))
	if err != nil || data == nil {
		return nil, err
	}

	var r domain.ScanReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode cached report %s: %w", scanID, err)
	}
	return &r, nil
}

func storeReport(ctx context.Context, s byteStore, ownerID string, r *domain.ScanReport, ttl time.Duration) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.Set(ctx, ownerID, reportKey(r.ID), data, ttl)
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis for distributed caching and persistence
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, ownerID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, ownerID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, ownerID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, ownerID, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2.
func (c *TwoPhaseCache) Set(ctx context.Context, ownerID string, key string, value []byte, ttl time.Duration) error {
	// L1 never outlives L2
	l1TTL := min(c.l1TTL, ttl)
	if err := c.local.Set(ctx, ownerID, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, ownerID, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, ownerID string, key string) error {
	if err := c.local.Delete(ctx, ownerID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, ownerID, key)
}

// GetReport retrieves a cached report through both layers.
func (c *TwoPhaseCache) GetReport(ctx context.Context, ownerID string, scanID string) (*domain.ScanReport, error) {
	return loadReport(ctx, c, ownerID, scanID)
}

// SetReport caches a report in both layers.
func (c *TwoPhaseCache) SetReport(ctx context.Context, ownerID string, r *domain.ScanReport, ttl time.Duration) error {
	return storeReport(ctx, c, ownerID, r, ttl)
}

// IncrementCounter uses Redis for distributed atomic counters.
// L1 is not used for counters to ensure accuracy across nodes.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, ownerID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, ownerID, key, window)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
