package loadshedding

import (
	"context"
	"strconv"
	"time"

	"github.com/angelmondragon/fueldrop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
	"github.com/angelmondragon/fueldrop-backend/pkg/retry"
	"github.com/angelmondragon/fueldrop-backend/pkg/types"
)

const (
	cacheScope      = "loadshedding"
	defaultCacheTTL = 5 * time.Minute
)

type stageFetcher interface {
	FetchStage(ctx context.Context, area string) (int, error)
}

type stageCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(parts ...string) string
}

// Provider resolves the stage for a delivery area. Lookups never fail: any
// error degrades to stage 0 so pricing can proceed.
type Provider struct {
	fetcher stageFetcher
	cache   stageCache
	policy  retry.Policy
	ttl     time.Duration
	logg    *logger.Logger
}

// NewProvider wires the status client behind a Redis cache. A nil fetcher
// disables lookups and every area reports stage 0.
func NewProvider(fetcher stageFetcher, cache stageCache, cfg config.LoadSheddingConfig, logg *logger.Logger) *Provider {
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Provider{
		fetcher: fetcher,
		cache:   cache,
		policy:  retry.Policy{Attempts: cfg.MaxAttempts, Timeout: cfg.Timeout},
		ttl:     ttl,
		logg:    logg,
	}
}

func (p *Provider) Stage(ctx context.Context, area string) int {
	key := types.NormalizeArea(area)
	if key == "" || p == nil || p.fetcher == nil {
		return 0
	}
	ctx = p.logg.WithField(ctx, "area", key)

	if p.cache != nil {
		if raw, err := p.cache.Get(ctx, p.cache.CacheKey(cacheScope, key)); err == nil {
			if stage, convErr := strconv.Atoi(raw); convErr == nil {
				return clampStage(stage)
			}
		}
	}

	stage, err := retry.Do(ctx, p.policy, func(err error) bool {
		return !pkgerrors.IsCode(err, pkgerrors.CodeValidation)
	}, func(ctx context.Context) (int, error) {
		return p.fetcher.FetchStage(ctx, key)
	})
	if err != nil {
		p.logg.Warn(ctx, "load-shedding lookup failed, assuming stage 0: "+err.Error())
		return 0
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, p.cache.CacheKey(cacheScope, key), strconv.Itoa(stage), p.ttl); err != nil {
			p.logg.Warn(ctx, "cache load-shedding stage failed: "+err.Error())
		}
	}
	return stage
}
