// Package telemetry registers OpenTelemetry instruments for the
// retrieval pipeline and wraps them in typed recording helpers.
//
// Instruments are created from the globally registered meter provider,
// which is a no-op unless the embedding process installs an SDK. Every
// Record method is safe to call on a nil *Metrics, so components treat
// their metrics field as optional and tests simply pass nil.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "manualkb"

// Metrics holds the instruments recorded across the retrieval pipeline.
type Metrics struct {
	queriesTotal    metric.Int64Counter
	queryDuration   metric.Float64Histogram
	cacheLookups    metric.Int64Counter
	embeddedTexts   metric.Int64Counter
	buildsTotal     metric.Int64Counter
	buildDuration   metric.Float64Histogram
	chunksIndexed   metric.Int64Counter
	degradedQueries metric.Int64Counter
}

// InitMetrics creates all instruments from the global meter provider.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	queriesTotal, err := meter.Int64Counter("manualkb.queries.total",
		metric.WithDescription("Completed retrieval queries by mode and outcome"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create queries counter: %w", err)
	}

	queryDuration, err := meter.Float64Histogram("manualkb.query.duration",
		metric.WithDescription("End-to-end retrieval query latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create query duration histogram: %w", err)
	}

	cacheLookups, err := meter.Int64Counter("manualkb.cache.lookups.total",
		metric.WithDescription("Response cache lookups by result"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create cache lookup counter: %w", err)
	}

	embeddedTexts, err := meter.Int64Counter("manualkb.embeddings.texts.total",
		metric.WithDescription("Texts submitted for embedding by call site"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create embedding counter: %w", err)
	}

	buildsTotal, err := meter.Int64Counter("manualkb.index.builds.total",
		metric.WithDescription("Index builds by outcome"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create build counter: %w", err)
	}

	buildDuration, err := meter.Float64Histogram("manualkb.index.build.duration",
		metric.WithDescription("Full index build duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create build duration histogram: %w", err)
	}

	chunksIndexed, err := meter.Int64Counter("manualkb.index.chunks.total",
		metric.WithDescription("Chunks written to the vector index across builds"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create chunk counter: %w", err)
	}

	degradedQueries, err := meter.Int64Counter("manualkb.queries.degraded.total",
		metric.WithDescription("Hybrid queries answered by a single ranking after the other failed"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create degraded query counter: %w", err)
	}

	return &Metrics{
		queriesTotal:    queriesTotal,
		queryDuration:   queryDuration,
		cacheLookups:    cacheLookups,
		embeddedTexts:   embeddedTexts,
		buildsTotal:     buildsTotal,
		buildDuration:   buildDuration,
		chunksIndexed:   chunksIndexed,
		degradedQueries: degradedQueries,
	}, nil
}

// RecordQuery records one completed query with its mode and latency.
func (m *Metrics) RecordQuery(ctx context.Context, mode string, degraded bool, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("degraded", degraded),
	)
	m.queriesTotal.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
	if degraded {
		m.degradedQueries.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
	}
}

// RecordQueryError records a query that returned an error to the caller.
func (m *Metrics) RecordQueryError(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.queriesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("error", true),
	))
}

// RecordCacheLookup records a response cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordEmbeddedTexts records n texts submitted for embedding from the
// given call site ("query" or "build").
func (m *Metrics) RecordEmbeddedTexts(ctx context.Context, site string, n int64) {
	if m == nil {
		return
	}
	m.embeddedTexts.Add(ctx, n, metric.WithAttributes(attribute.String("site", site)))
}

// RecordBuild records one finished index build.
func (m *Metrics) RecordBuild(ctx context.Context, succeeded bool, duration time.Duration, chunks int64) {
	if m == nil {
		return
	}
	status := "failed"
	if succeeded {
		status = "succeeded"
	}
	m.buildsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.buildDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
	if succeeded && chunks > 0 {
		m.chunksIndexed.Add(ctx, chunks)
	}
}
