package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/cache"
)

// DefaultCost is the conservative fallback charged when no active pricing row
// is configured for an action type.
const DefaultCost = 1

const cacheKeyPrefix = "pricing:"
const cacheTTL = time.Minute

// Price is the resolved cost of one action type.
type Price struct {
	ActionType string `json:"action_type"`
	Pool       string `json:"pool"`
	Cost       int64  `json:"cost"`
}

// Repository provides the DB operations used by the registry.
type Repository interface {
	FindActive(ctx context.Context, actionType string) (*models.CreditPricing, error)
	Upsert(ctx context.Context, row *models.CreditPricing) error
}

// Cache is the small cache surface the registry needs; nil disables caching.
type Cache interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, expiration time.Duration) error
	Delete(key string) error
}

// Registry resolves action types to credit costs with a short-lived cache in
// front of the pricing table.
type Registry struct {
	repo  Repository
	cache Cache
}

// NewRegistry creates a registry from an injected repository. cache may be
// nil (tests, local dev without redis).
func NewRegistry(repo Repository, c Cache) *Registry {
	return &Registry{repo: repo, cache: c}
}

// NewRegistryFromDB creates a registry backed by GORM and the shared redis
// cache.
func NewRegistryFromDB(db *gorm.DB) *Registry {
	return NewRegistry(NewRepository(db), redisCache{})
}

// CostOf returns the pool and cost for an action type. Unconfigured action
// types fall back to DefaultCost with a logged warning; the lookup error is
// never surfaced as a failure of the guarded operation.
func (r *Registry) CostOf(ctx context.Context, actionType string) (Price, error) {
	if cached, ok := r.fromCache(actionType); ok {
		return cached, nil
	}

	row, err := r.repo.FindActive(ctx, actionType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Pricing] no active pricing for action %q, falling back to default cost %d", actionType, DefaultCost)
			price := Price{
				ActionType: actionType,
				Pool:       models.DefaultPoolForAction(actionType),
				Cost:       DefaultCost,
			}
			r.toCache(price)
			return price, nil
		}
		return Price{}, err
	}

	price := Price{ActionType: actionType, Pool: row.Pool, Cost: row.Cost}
	r.toCache(price)
	return price, nil
}

// Upsert is the administrative update: it updates the existing active row for
// the action type or inserts a new one, keeping at most one active row.
func (r *Registry) Upsert(ctx context.Context, actionType, pool string, cost int64, description string, active bool) (*models.CreditPricing, error) {
	if actionType == "" {
		return nil, errors.New("action_type is required")
	}
	if !models.KnownPool(pool) {
		return nil, fmt.Errorf("unknown pool %q", pool)
	}
	if cost <= 0 {
		return nil, errors.New("cost must be a positive integer")
	}

	row := &models.CreditPricing{
		ActionType:  actionType,
		Pool:        pool,
		Cost:        cost,
		Description: description,
		Active:      active,
	}
	if err := r.repo.Upsert(ctx, row); err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Delete(cacheKeyPrefix + actionType); err != nil && !cache.IsNil(err) {
			log.Warnf("[Pricing] cache invalidation failed for %q: %v", actionType, err)
		}
	}
	return row, nil
}

func (r *Registry) fromCache(actionType string) (Price, bool) {
	if r.cache == nil {
		return Price{}, false
	}
	raw, err := r.cache.Get(cacheKeyPrefix + actionType)
	if err != nil {
		return Price{}, false
	}
	var price Price
	if err := json.Unmarshal([]byte(raw), &price); err != nil {
		return Price{}, false
	}
	return price, true
}

func (r *Registry) toCache(price Price) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(price)
	if err != nil {
		return
	}
	if err := r.cache.Set(cacheKeyPrefix+price.ActionType, string(raw), cacheTTL); err != nil {
		log.Warnf("[Pricing] cache write failed for %q: %v", price.ActionType, err)
	}
}

// redisCache adapts the shared cache package to the registry's Cache surface.
type redisCache struct{}

func (redisCache) Get(key string) (string, error) { return cache.Get(key) }
func (redisCache) Set(key string, value interface{}, expiration time.Duration) error {
	return cache.Set(key, value, expiration)
}
func (redisCache) Delete(key string) error { return cache.Delete(key) }
