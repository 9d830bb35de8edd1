package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricStageDuration      = "prdiff.pipeline.stage.duration.seconds"
	metricToolIssuesTotal    = "prdiff.analysis.tool_issues.total"
	metricCacheHitsTotal     = "prdiff.cache.hits.total"
	metricCacheMissesTotal   = "prdiff.cache.misses.total"
	metricCacheFallbackTotal = "prdiff.cache.memory_fallbacks.total"
	metricCompressionsTotal  = "prdiff.cache.compressions.total"

	attrStage = "stage"
	attrKind  = "kind"
	attrTool  = "tool"
)

// PipelineMetrics holds OTel instruments for the PR-diff pipeline's own
// stages (index, analyze, compare), distinct from the generic RED metrics
// REDMetrics tracks for the outer surface.
type PipelineMetrics struct {
	stageDuration   metric.Float64Histogram
	toolIssuesTotal metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	cacheFallbacks  metric.Int64Counter
	compressions    metric.Int64Counter
}

// StageStats holds the per-run statistics a single pipeline stage reports
// back to PipelineMetrics.RecordStage.
type StageStats struct {
	Stage    string
	Duration time.Duration
}

// NewPipelineMetrics creates pipeline metric instruments from the given meter.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	stageDur, err := mt.Float64Histogram(metricStageDuration,
		metric.WithDescription("Duration of a pipeline stage (index, analyze, compare) in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricStageDuration, err)
	}

	toolIssues, err := mt.Int64Counter(metricToolIssuesTotal,
		metric.WithDescription("Total canonical issues reported by a tool adapter"),
		metric.WithUnit("{issue}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolIssuesTotal, err)
	}

	hits, err := mt.Int64Counter(metricCacheHitsTotal,
		metric.WithDescription("Cache hits by artifact kind"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheHitsTotal, err)
	}

	misses, err := mt.Int64Counter(metricCacheMissesTotal,
		metric.WithDescription("Cache misses by artifact kind"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheMissesTotal, err)
	}

	fallbacks, err := mt.Int64Counter(metricCacheFallbackTotal,
		metric.WithDescription("Falls back to the in-process cache tier after a distributed-tier failure"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCacheFallbackTotal, err)
	}

	compressions, err := mt.Int64Counter(metricCompressionsTotal,
		metric.WithDescription("Cache payloads compressed before storage"),
		metric.WithUnit("{payload}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCompressionsTotal, err)
	}

	return &PipelineMetrics{
		stageDuration:   stageDur,
		toolIssuesTotal: toolIssues,
		cacheHits:       hits,
		cacheMisses:     misses,
		cacheFallbacks:  fallbacks,
		compressions:    compressions,
	}, nil
}

// RecordStage records the duration of one completed pipeline stage. Safe to
// call on a nil receiver (no-op).
func (pm *PipelineMetrics) RecordStage(ctx context.Context, stats StageStats) {
	if pm == nil {
		return
	}

	pm.stageDuration.Record(ctx, stats.Duration.Seconds(),
		metric.WithAttributes(attribute.String(attrStage, stats.Stage)))
}

// RecordToolIssues records how many issues a single tool adapter reported
// during branch analysis. Safe to call on a nil receiver (no-op).
func (pm *PipelineMetrics) RecordToolIssues(ctx context.Context, tool string, count int64) {
	if pm == nil {
		return
	}

	pm.toolIssuesTotal.Add(ctx, count, metric.WithAttributes(attribute.String(attrTool, tool)))
}

// RecordCacheOutcome records a cache hit or miss for the given artifact
// kind. Safe to call on a nil receiver (no-op).
func (pm *PipelineMetrics) RecordCacheOutcome(ctx context.Context, kind string, hit bool) {
	if pm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrKind, kind))

	if hit {
		pm.cacheHits.Add(ctx, 1, attrs)
	} else {
		pm.cacheMisses.Add(ctx, 1, attrs)
	}
}

// RecordCacheFallback records one distributed-tier failure served instead
// from the in-process tier. Safe to call on a nil receiver (no-op).
func (pm *PipelineMetrics) RecordCacheFallback(ctx context.Context, kind string) {
	if pm == nil {
		return
	}

	pm.cacheFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, kind)))
}

// RecordCompression records one cache payload compressed before storage.
// Safe to call on a nil receiver (no-op).
func (pm *PipelineMetrics) RecordCompression(ctx context.Context, kind string) {
	if pm == nil {
		return
	}

	pm.compressions.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, kind)))
}
