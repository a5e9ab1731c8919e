package recordloader

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// LoaderOption is the interface for the options of the RecordLoader.
type LoaderOption interface {
	apply(*loaderOptions)
}

type loaderOptionFunc func(*loaderOptions)

func (f loaderOptionFunc) apply(o *loaderOptions) {
	f(o)
}

// WithWhere narrows the candidate rows of every query of the loader.
// Loaders with different predicates are distinct loaders in a Coordinator.
func WithWhere(where Where) LoaderOption {
	return loaderOptionFunc(func(o *loaderOptions) {
		o.where = where
	})
}

// WithMaxBatchSize limits the number of keys in one query.
// Keys beyond the limit stay pending for the next dispatch cycle.
// The size must be a natural number. The default is unlimited.
func WithMaxBatchSize(size int) LoaderOption {
	if size <= 0 {
		panic("max batch size must be natural number")
	}
	return loaderOptionFunc(func(o *loaderOptions) {
		o.maxBatchSize = size
	})
}

type loaderOptions struct {
	where        Where
	maxBatchSize int
}

func defaultLoaderOptions() loaderOptions {
	return loaderOptions{}
}

// CoordinatorOption is the interface for the options of the Coordinator.
type CoordinatorOption interface {
	apply(*Coordinator)
}

type coordinatorOptionFunc func(*Coordinator)

func (f coordinatorOptionFunc) apply(c *Coordinator) {
	f(c)
}

// WithLogger sets the logger to the coordinator.
// The default logger discards everything.
func WithLogger(logger *zap.Logger) CoordinatorOption {
	return coordinatorOptionFunc(func(c *Coordinator) {
		c.logger = logger
	})
}

// WithTracerProvider sets the tracer provider to the coordinator.
// The default is the global tracer provider.
func WithTracerProvider(provider trace.TracerProvider) CoordinatorOption {
	return coordinatorOptionFunc(func(c *Coordinator) {
		c.tracer = provider.Tracer(instrumentationName)
	})
}

const instrumentationName = "github.com/karupanerura/recordloader"

func defaultTracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(instrumentationName)
}
