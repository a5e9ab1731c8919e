package sqlsource

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option is the interface for the options of the Source.
type Option interface {
	apply(*Source)
}

type optionFunc func(*Source)

func (f optionFunc) apply(s *Source) {
	f(s)
}

// WithDialect sets the SQL dialect. The default is MySQL.
func WithDialect(d Dialect) Option {
	return optionFunc(func(s *Source) {
		s.dialect = d
	})
}

// WithTableName maps the model to the table.
// By default the table of a model is the plural snake case of its name. (e.g. "BlogPost" => "blog_posts")
func WithTableName(model, table string) Option {
	return optionFunc(func(s *Source) {
		s.tables[model] = table
	})
}

// WithLogger sets the logger that receives every issued statement at debug level.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(s *Source) {
		s.logger = logger
	})
}

// WithTracerProvider sets the tracer provider. The default is the global tracer provider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return optionFunc(func(s *Source) {
		s.tracer = provider.Tracer(instrumentationName)
	})
}

const instrumentationName = "github.com/karupanerura/recordloader/source/sqlsource"

func defaultTracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(instrumentationName)
}
