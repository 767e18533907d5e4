package usaspending

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/depointe/govforecast/internal/cache"
	"github.com/depointe/govforecast/internal/models"
)

// Provider is anything that can supply historical awards.
type Provider interface {
	GetHistoricalContracts(ctx context.Context) ([]models.HistoricalAward, error)
}

const awardsCacheKey = "usaspending:historical_contracts"

// CachedProvider wraps a Provider with a Redis-backed JSON cache. Award data
// moves slowly; a few hours of staleness is cheaper than hammering the API
// on every forecast run.
type CachedProvider struct {
	inner Provider
	cache *cache.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedProvider(inner Provider, c *cache.Cache, ttl time.Duration, logger zerolog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CachedProvider{
		inner: inner,
		cache: c,
		ttl:   ttl,
		log:   logger.With().Str("component", "usaspending_cache").Logger(),
	}
}

func (p *CachedProvider) GetHistoricalContracts(ctx context.Context) ([]models.HistoricalAward, error) {
	var cached []models.HistoricalAward
	err := p.cache.GetJSON(ctx, awardsCacheKey, &cached)
	if err == nil {
		p.log.Debug().Int("awards", len(cached)).Msg("cache hit")
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		// A broken cache should not take the pipeline down
		p.log.Warn().Err(err).Msg("cache read failed")
	}

	awards, err := p.inner.GetHistoricalContracts(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.cache.SetJSON(ctx, awardsCacheKey, awards, p.ttl); err != nil {
		p.log.Warn().Err(err).Msg("cache write failed")
	}

	return awards, nil
}
