package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/nurse-directory/internal/cache"
	"github.com/kjstillabower/nurse-directory/internal/client"
	"github.com/kjstillabower/nurse-directory/internal/models"
	"github.com/kjstillabower/nurse-directory/internal/normalize"
	"github.com/kjstillabower/nurse-directory/internal/observability"
)

// Enricher attaches CityInfo to lookup results using cache-aside over the
// city metadata client. It never fails: any error yields CityInfo{Name}.
type Enricher struct {
	client client.CityClient
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
}

// NewEnricher creates an Enricher. ttl is the cache lifetime of successful
// lookups; failures are not cached.
func NewEnricher(c client.CityClient, ch cache.Cache, ttl time.Duration) *Enricher {
	return &Enricher{client: c, cache: ch, ttl: ttl}
}

// Enrich sets CityInfo on every record. Records whose cities normalize to the
// same key share one lookup, named by the first record's trimmed city.
func (e *Enricher) Enrich(ctx context.Context, records []models.NurseRecord) {
	infos := make(map[string]*models.CityInfo)
	for i := range records {
		name := strings.TrimSpace(records[i].City)
		key := normalize.Key(name)
		info, ok := infos[key]
		if !ok {
			ci := e.Lookup(ctx, name)
			info = &ci
			infos[key] = info
		}
		records[i].CityInfo = info
	}
}

// Lookup returns metadata for name. Concurrent lookups for the same
// normalized name share one upstream call.
func (e *Enricher) Lookup(ctx context.Context, name string) models.CityInfo {
	logger := observability.LoggerFromContext(ctx)
	key := normalize.Key(name)
	if key == "" {
		return models.CityInfo{Name: name}
	}

	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
			logger.Warn("city cache get failed", zap.String("city", name), zap.Error(err))
		} else if ok {
			observability.CacheHitsTotal.WithLabelValues(e.cache.Backend()).Inc()
			return cached
		}
	}

	// The flight outlives any one caller; the client applies its own timeout.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := e.group.Do(key, func() (interface{}, error) {
		return e.client.GetCityInfo(flightCtx, name)
	})
	if err != nil {
		observability.EnrichmentDegradedTotal.Inc()
		logger.Info("city enrichment degraded",
			zap.String("city", name),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return models.CityInfo{Name: name}
	}
	info := v.(models.CityInfo)
	if info.Name == "" {
		info.Name = name
	}

	if e.cache != nil && !shared {
		if setErr := e.cache.Set(ctx, key, info, e.ttl); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
			logger.Warn("city cache set failed", zap.String("city", name), zap.Error(setErr))
		}
	}
	return info
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
