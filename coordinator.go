package recordloader

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// LoaderKey identifies a loader within a Coordinator.
type LoaderKey struct {
	Model  string
	Column string
	Where  string
}

// NewLoaderKey returns the key of the loader of model rows by column narrowed by where.
func NewLoaderKey(model, column string, where Where) LoaderKey {
	return LoaderKey{Model: model, Column: column, Where: where.String()}
}

// String returns a human readable form of the key.
func (k LoaderKey) String() string {
	if k.Where == "" {
		return k.Model + "." + k.Column
	}
	return k.Model + "." + k.Column + " WHERE " + k.Where
}

type registration struct {
	key    LoaderKey
	loader BatchLoader
}

// Coordinator owns the loaders of one execution, typically one request.
// It reuses one loader per LoaderKey so that loads of the same key set are coalesced,
// and drives dispatch cycles until no loader has pending keys.
// A Coordinator is not safe for concurrent use and must not outlive its execution.
type Coordinator struct {
	loaders map[LoaderKey]int
	entries []registration
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewCoordinator creates a new empty Coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		loaders: map[LoaderKey]int{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	if c.tracer == nil {
		c.tracer = defaultTracer()
	}
	return c
}

// GetOrCreate returns the loader registered for the key, or registers the one built by factory.
// If factory fails, nothing is registered and the error is returned.
func (c *Coordinator) GetOrCreate(key LoaderKey, factory func() (BatchLoader, error)) (BatchLoader, error) {
	if i, ok := c.loaders[key]; ok {
		return c.entries[i].loader, nil
	}

	loader, err := factory()
	if err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, fmt.Errorf("recordloader: factory of %s returned nil loader", key)
	}

	c.loaders[key] = len(c.entries)
	c.entries = append(c.entries, registration{key: key, loader: loader})
	c.logger.Debug("register loader", loaderFields(key)...)
	return loader, nil
}

// For returns the RecordLoader of model rows by column registered in the coordinator,
// creating it with NewRecordLoader on first use.
// The column and the WithWhere predicate are resolved against the model first,
// so spellings that load the same rows share one loader. (e.g. "posts.id" and "post.id", Where{"id": "1"} and Where{"id": 1})
func For(c *Coordinator, source DataSource, model, column string, opts ...LoaderOption) (*RecordLoader, error) {
	m, ok := source.Model(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	if column == "" {
		column = m.PrimaryKey()
	}
	path, _, err := resolveColumn(source, m, column)
	if err != nil {
		return nil, err
	}

	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt.apply(&options)
	}
	where, err := options.where.Normalize(m)
	if err != nil {
		return nil, err
	}

	key := NewLoaderKey(model, path.String(), where)
	loader, err := c.GetOrCreate(key, func() (BatchLoader, error) {
		return NewRecordLoader(source, model, column, opts...)
	})
	if err != nil {
		return nil, err
	}

	rl, ok := loader.(*RecordLoader)
	if !ok {
		return nil, fmt.Errorf("recordloader: loader %s is %T, not *RecordLoader", key, loader)
	}
	return rl, nil
}

// Len returns the number of registered loaders.
func (c *Coordinator) Len() int {
	return len(c.entries)
}

// Pending reports whether any registered loader has pending keys.
func (c *Coordinator) Pending() bool {
	for _, e := range c.entries {
		if e.loader.PendingCount() != 0 {
			return true
		}
	}
	return false
}

// Dispatch performs batches until no registered loader has pending keys.
// Each cycle runs one batch per loader with pending keys, in registration order.
// Keys loaded while a cycle fulfills its futures are performed by a later cycle.
// Failed batches do not stop the dispatch; their errors are returned together at the end.
// If ctx is done, every pending future is rejected with the context error.
func (c *Coordinator) Dispatch(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "recordloader.Dispatch")
	defer span.End()

	var errs *multierror.Error
	cycle := 0
	for c.Pending() {
		cycle++
		c.logger.Debug("dispatch cycle", zap.Int("cycle", cycle))

		for _, e := range c.pendingEntries() {
			if err := ctx.Err(); err != nil {
				errs = multierror.Append(errs, err)
				if panicked := c.rejectPending(err); panicked != nil {
					errs = multierror.Append(errs, panicked)
				}
				break
			}
			if err := c.performBatch(ctx, e); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}

	span.SetAttributes(attribute.Int("recordloader.cycles", cycle))
	if err := errs.ErrorOrNil(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return err
	}
	return nil
}

// pendingEntries snapshots the loaders with pending keys.
func (c *Coordinator) pendingEntries() []registration {
	var pending []registration
	for _, e := range c.entries {
		if e.loader.PendingCount() != 0 {
			pending = append(pending, e)
		}
	}
	return pending
}

func (c *Coordinator) performBatch(ctx context.Context, e registration) error {
	keys := e.loader.PendingCount()
	ctx, span := c.tracer.Start(ctx, "recordloader.PerformBatch", trace.WithAttributes(
		attribute.String("recordloader.model", e.key.Model),
		attribute.String("recordloader.column", e.key.Column),
		attribute.String("recordloader.where", e.key.Where),
		attribute.Int("recordloader.keys", keys),
	))
	defer span.End()

	if err := e.loader.PerformBatch(ctx); err != nil {
		c.logger.Warn("batch failed", append(loaderFields(e.key), zap.Int("keys", keys), zap.Error(err))...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch failed")
		return err
	}
	c.logger.Debug("batch performed", append(loaderFields(e.key), zap.Int("keys", keys))...)
	return nil
}

func loaderFields(key LoaderKey) []zap.Field {
	fields := []zap.Field{zap.String("model", key.Model), zap.String("column", key.Column)}
	if key.Where != "" {
		fields = append(fields, zap.String("where", key.Where))
	}
	return fields
}

func (c *Coordinator) rejectPending(err error) error {
	var panicked *multierror.Error
	for _, e := range c.entries {
		if p := e.loader.RejectPending(err); p != nil {
			panicked = multierror.Append(panicked, p)
		}
	}
	return panicked.ErrorOrNil()
}

// Await dispatches the coordinator until the future is resolved and returns its result.
// It returns ErrPending if dispatching cannot resolve the future.
func Await[V any](ctx context.Context, c *Coordinator, f *Future[V]) (V, error) {
	if !f.Done() {
		if err := c.Dispatch(ctx); err != nil && !f.Done() {
			var zero V
			return zero, err
		}
	}
	return f.Result()
}
