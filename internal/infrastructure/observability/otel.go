package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/kolade/sitewatch/backend"

// Metrics holds all application metrics
type Metrics struct {
	IngestBatchSize metric.Int64Histogram
	IngestAccepted  metric.Int64Counter
	IngestSkipped   metric.Int64Counter
	RebuildDuration metric.Float64Histogram
	RebuildFailures metric.Int64Counter
	CacheHitCount   metric.Int64Counter
	CacheMissCount  metric.Int64Counter
}

// Setup initializes OpenTelemetry
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	// Set up trace exporter
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	// Set up trace provider
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Shutdown function
	shutdown := func(ctx context.Context) error {
		return tracerProvider.Shutdown(ctx)
	}

	return shutdown, nil
}

// InitMetrics initializes application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	ingestBatchSize, err := meter.Int64Histogram(
		"ingest.batch.size",
		metric.WithDescription("Number of events per admitted batch"),
	)
	if err != nil {
		return nil, err
	}

	ingestAccepted, err := meter.Int64Counter(
		"ingest.events.accepted",
		metric.WithDescription("Number of events accepted into the event store"),
	)
	if err != nil {
		return nil, err
	}

	ingestSkipped, err := meter.Int64Counter(
		"ingest.events.skipped",
		metric.WithDescription("Number of duplicate events skipped on insert"),
	)
	if err != nil {
		return nil, err
	}

	rebuildDuration, err := meter.Float64Histogram(
		"rollup.rebuild.duration",
		metric.WithDescription("Per-date rollup rebuild duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	rebuildFailures, err := meter.Int64Counter(
		"rollup.rebuild.failures",
		metric.WithDescription("Number of failed per-date rollup rebuilds"),
	)
	if err != nil {
		return nil, err
	}

	cacheHitCount, err := meter.Int64Counter(
		"cache.hit.count",
		metric.WithDescription("Number of stats cache hits"),
	)
	if err != nil {
		return nil, err
	}

	cacheMissCount, err := meter.Int64Counter(
		"cache.miss.count",
		metric.WithDescription("Number of stats cache misses"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		IngestBatchSize: ingestBatchSize,
		IngestAccepted:  ingestAccepted,
		IngestSkipped:   ingestSkipped,
		RebuildDuration: rebuildDuration,
		RebuildFailures: rebuildFailures,
		CacheHitCount:   cacheHitCount,
		CacheMissCount:  cacheMissCount,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName)
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// RecordRebuildMetric records a per-date rebuild duration
func RecordRebuildMetric(ctx context.Context, metrics *Metrics, projectID string, duration time.Duration) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("project.id", projectID),
	}
	metrics.RebuildDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordRebuildFailure counts a failed per-date rebuild
func RecordRebuildFailure(ctx context.Context, metrics *Metrics, projectID string) {
	if metrics == nil {
		return
	}
	metrics.RebuildFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("project.id", projectID)))
}

// RecordIngestMetric records the outcome of one admitted batch
func RecordIngestMetric(ctx context.Context, metrics *Metrics, projectID string, accepted, skipped, total int) {
	if metrics == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("project.id", projectID),
	}
	metrics.IngestBatchSize.Record(ctx, int64(total), metric.WithAttributes(attrs...))
	metrics.IngestAccepted.Add(ctx, int64(accepted), metric.WithAttributes(attrs...))
	metrics.IngestSkipped.Add(ctx, int64(skipped), metric.WithAttributes(attrs...))
}

// RecordCacheHit records a stats cache hit
func RecordCacheHit(ctx context.Context, metrics *Metrics, namespace string) {
	if metrics == nil {
		return
	}
	metrics.CacheHitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.namespace", namespace)))
}

// RecordCacheMiss records a stats cache miss
func RecordCacheMiss(ctx context.Context, metrics *Metrics, namespace string) {
	if metrics == nil {
		return
	}
	metrics.CacheMissCount.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.namespace", namespace)))
}
