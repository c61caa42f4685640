package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cachecore/application/ports"
	"cachecore/domain/key"
)

const tracerName = "cachecore/engine"

// Tracer starts OpenTelemetry spans named for a pipeline tier (StartTier).
// Store calls are spanned separately by TracedStore below; there is no
// Loader wrapper, and the engine does not open spans itself.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer constructs a Tracer using the global TracerProvider. Host
// applications configure the actual exporter (otlptracegrpc or otherwise)
// independently of this package.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// StartTier starts a span named for the given pipeline tier, tagging the
// cache key's domain/facet so traces can be filtered per cache domain.
func (t *Tracer) StartTier(ctx context.Context, tier string, k key.Key) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "cache."+tier,
		trace.WithAttributes(
			attribute.String("cache.domain", k.Domain()),
			attribute.String("cache.facet", k.Facet()),
		),
	)
	return ctx, span
}

// EndSpan records err on span (if non-nil) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TracedStore wraps a StoreAdapter, emitting a span per call.
type TracedStore struct {
	inner  ports.StoreAdapter
	tracer trace.Tracer
}

// NewTracedStore wraps inner with OpenTelemetry spans for every StoreAdapter
// method call.
func NewTracedStore(inner ports.StoreAdapter) *TracedStore {
	return &TracedStore{inner: inner, tracer: otel.Tracer(tracerName)}
}

var _ ports.StoreAdapter = (*TracedStore)(nil)

func (s *TracedStore) GetItem(ctx context.Context, keyString string) (ports.ItemHandle, error) {
	ctx, span := s.tracer.Start(ctx, "store.GetItem")
	defer span.End()
	h, err := s.inner.GetItem(ctx, keyString)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return h, err
}

func (s *TracedStore) TryLock(ctx context.Context, keyString string, lockTTLSec int) (bool, func(context.Context) error, error) {
	ctx, span := s.tracer.Start(ctx, "store.TryLock")
	defer span.End()
	acquired, release, err := s.inner.TryLock(ctx, keyString, lockTTLSec)
	span.SetAttributes(attribute.Bool("lock.acquired", acquired))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return acquired, release, err
}

func (s *TracedStore) Save(ctx context.Context, handle ports.ItemHandle, value interface{}, ttlSec int) error {
	ctx, span := s.tracer.Start(ctx, "store.Save")
	defer span.End()
	err := s.inner.Save(ctx, handle, value, ttlSec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracedStore) Timestamps(ctx context.Context, handle ports.ItemHandle) (time.Time, time.Time, error) {
	ctx, span := s.tracer.Start(ctx, "store.Timestamps")
	defer span.End()
	createdAt, hardExpiresAt, err := s.inner.Timestamps(ctx, handle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return createdAt, hardExpiresAt, err
}

func (s *TracedStore) DeleteExact(ctx context.Context, keyString string) error {
	ctx, span := s.tracer.Start(ctx, "store.DeleteExact")
	defer span.End()
	err := s.inner.DeleteExact(ctx, keyString)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracedStore) ClearByPrefix(ctx context.Context, prefixString string) error {
	ctx, span := s.tracer.Start(ctx, "store.ClearByPrefix")
	defer span.End()
	err := s.inner.ClearByPrefix(ctx, prefixString)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
