package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCacheHits   = "prdiff.cache.hits"
	metricCacheMisses = "prdiff.cache.misses"

	cacheTierDistributed = "distributed"
	cacheTierLocal       = "local"
)

// CacheStatsProvider exposes cache hit/miss counters for OTel export. The
// two-tier cache.Cache satisfies this through its OverallStats/Stats
// accessors.
type CacheStatsProvider interface {
	CacheHits() int64
	CacheMisses() int64
}

// RegisterCacheMetrics registers observable gauges reporting hit/miss
// counters from the distributed and local cache tiers. Either provider may
// be nil.
func RegisterCacheMetrics(mt metric.Meter, distributed, local CacheStatsProvider) error {
	type tier struct {
		name     string
		provider CacheStatsProvider
	}

	var tiers []tier

	if distributed != nil {
		tiers = append(tiers, tier{cacheTierDistributed, distributed})
	}

	if local != nil {
		tiers = append(tiers, tier{cacheTierLocal, local})
	}

	if len(tiers) == 0 {
		return nil
	}

	_, err := mt.Int64ObservableGauge(metricCacheHits,
		metric.WithDescription("Cache hit count by tier"),
		metric.WithUnit("{hit}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, t := range tiers {
				o.Observe(t.provider.CacheHits(), metric.WithAttributes(
					attribute.String("tier", t.name),
				))
			}

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheHits, err)
	}

	_, err = mt.Int64ObservableGauge(metricCacheMisses,
		metric.WithDescription("Cache miss count by tier"),
		metric.WithUnit("{miss}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, t := range tiers {
				o.Observe(t.provider.CacheMisses(), metric.WithAttributes(
					attribute.String("tier", t.name),
				))
			}

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricCacheMisses, err)
	}

	return nil
}
