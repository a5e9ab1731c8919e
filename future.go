package recordloader

import (
	"github.com/hashicorp/go-multierror"
	"github.com/karupanerura/recordloader/internal/panicutil"
)

// Future is a value that becomes available after a dispatch cycle.
// It is resolved at most once; later resolution attempts are ignored.
// Futures are not safe for concurrent use.
type Future[V any] struct {
	done      bool
	value     V
	err       error
	callbacks []func(V, error)
}

// Resolved returns a future already resolved with the value.
func Resolved[V any](v V) *Future[V] {
	return &Future[V]{done: true, value: v}
}

// Rejected returns a future already resolved with the error.
func Rejected[V any](err error) *Future[V] {
	return &Future[V]{done: true, err: err}
}

// Done reports whether the future is resolved.
func (f *Future[V]) Done() bool {
	return f.done
}

// Result returns the resolved value and error.
// It returns ErrPending if the future is not resolved yet.
func (f *Future[V]) Result() (V, error) {
	if !f.done {
		var zero V
		return zero, ErrPending
	}
	return f.value, f.err
}

// OnResolve registers a callback invoked with the result.
// Callbacks run synchronously in registration order when the future is resolved,
// or immediately if it is resolved already.
// A panicking callback does not keep the later callbacks from running;
// the recovered panic is reported to whoever resolved the future.
func (f *Future[V]) OnResolve(callback func(V, error)) {
	if f.done {
		callback(f.value, f.err)
		return
	}
	f.callbacks = append(f.callbacks, callback)
}

func (f *Future[V]) fulfill(v V) (bool, error) {
	return f.settle(v, nil)
}

func (f *Future[V]) reject(err error) (bool, error) {
	var zero V
	return f.settle(zero, err)
}

// settle resolves the future once. It returns false if the future was resolved already.
// Every callback runs even if an earlier one panics; the recovered panics are returned
// as *panics.ErrRecovered.
func (f *Future[V]) settle(v V, err error) (bool, error) {
	if f.done {
		return false, nil
	}
	f.done = true
	f.value = v
	f.err = err

	callbacks := f.callbacks
	f.callbacks = nil
	var panicked *multierror.Error
	for _, callback := range callbacks {
		if p := panicutil.Catch(func() error {
			callback(v, err)
			return nil
		}); p != nil {
			panicked = multierror.Append(panicked, p)
		}
	}
	return true, panicked.ErrorOrNil()
}

// propagate settles a derived future from a callback of its source.
// Panics of the derived future's callbacks are raised again so that they reach
// the settle of the source.
func (f *Future[V]) propagate(v V, err error) {
	if _, panicked := f.settle(v, err); panicked != nil {
		panic(panicked)
	}
}

// Then returns a future resolved with the result of fn applied to the value of f.
// If f is rejected or fn fails, the returned future is rejected.
// A panic in fn rejects the returned future with *panics.ErrRecovered.
func Then[V, U any](f *Future[V], fn func(V) (U, error)) *Future[U] {
	next := &Future[U]{}
	f.OnResolve(func(v V, err error) {
		var zero U
		if err != nil {
			next.propagate(zero, err)
			return
		}

		var u U
		if err := panicutil.Catch(func() (err error) {
			u, err = fn(v)
			return
		}); err != nil {
			next.propagate(zero, err)
			return
		}
		next.propagate(u, nil)
	})
	return next
}

// Chain is like Then but fn returns a future, typically from another Load.
// The returned future is resolved when the future returned by fn is.
func Chain[V, U any](f *Future[V], fn func(V) (*Future[U], error)) *Future[U] {
	next := &Future[U]{}
	f.OnResolve(func(v V, err error) {
		var zero U
		if err != nil {
			next.propagate(zero, err)
			return
		}

		var inner *Future[U]
		if err := panicutil.Catch(func() (err error) {
			inner, err = fn(v)
			return
		}); err != nil {
			next.propagate(zero, err)
			return
		}
		if inner == nil {
			next.propagate(zero, nil)
			return
		}
		inner.OnResolve(next.propagate)
	})
	return next
}

// All returns a future resolved with the values of every future in order.
// It is rejected with the first error in order once every future is resolved.
func All[V any](futures ...*Future[V]) *Future[[]V] {
	if len(futures) == 0 {
		return Resolved([]V{})
	}

	next := &Future[[]V]{}
	remaining := len(futures)
	values := make([]V, len(futures))
	errs := make([]error, len(futures))
	for i, f := range futures {
		f.OnResolve(func(v V, err error) {
			values[i] = v
			errs[i] = err
			remaining--
			if remaining != 0 {
				return
			}
			for _, err := range errs {
				if err != nil {
					next.propagate(nil, err)
					return
				}
			}
			next.propagate(values, nil)
		})
	}
	return next
}
