package recordloader

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc/panics"
)

func TestFuture_Result(t *testing.T) {
	t.Parallel()

	f := &Future[int]{}
	if f.Done() {
		t.Error("new future must not be done")
	}
	if _, err := f.Result(); !errors.Is(err, ErrPending) {
		t.Errorf("expected ErrPending, got %v", err)
	}

	if v, err := Resolved(1).Result(); v != 1 || err != nil {
		t.Errorf("Resolved(1).Result() = %v, %v", v, err)
	}

	errBoom := errors.New("boom")
	if _, err := Rejected[int](errBoom).Result(); !errors.Is(err, errBoom) {
		t.Errorf("expected errBoom, got %v", err)
	}
}

func TestFuture_SettleOnce(t *testing.T) {
	t.Parallel()

	var got []string
	f := &Future[int]{}
	f.OnResolve(func(v int, err error) {
		got = append(got, "first:"+strconv.Itoa(v))
	})
	f.OnResolve(func(v int, err error) {
		got = append(got, "second:"+strconv.Itoa(v))
	})

	if ok, err := f.fulfill(1); !ok || err != nil {
		t.Errorf("first fulfill must succeed, got %v, %v", ok, err)
	}
	if ok, _ := f.fulfill(2); ok {
		t.Error("second fulfill must be ignored")
	}
	if ok, _ := f.reject(errors.New("late")); ok {
		t.Error("reject after fulfill must be ignored")
	}
	f.OnResolve(func(v int, err error) {
		got = append(got, "late:"+strconv.Itoa(v))
	})

	if diff := cmp.Diff([]string{"first:1", "second:1", "late:1"}, got); diff != "" {
		t.Errorf("callbacks mismatch (-want +got):\n%s", diff)
	}
	if v, err := f.Result(); v != 1 || err != nil {
		t.Errorf("Result() = %v, %v", v, err)
	}
}

func TestFuture_PanickingCallback(t *testing.T) {
	t.Parallel()

	var got []string
	f := &Future[int]{}
	f.OnResolve(func(v int, err error) {
		panic("boom")
	})
	f.OnResolve(func(v int, err error) {
		got = append(got, "second:"+strconv.Itoa(v))
	})
	derived := Then(f, func(v int) (int, error) { return v + 1, nil })
	derived.OnResolve(func(v int, err error) {
		panic("derived boom")
	})

	ok, err := f.fulfill(1)
	if !ok {
		t.Fatal("fulfill must succeed")
	}
	var recovered *panics.ErrRecovered
	if !errors.As(err, &recovered) {
		t.Fatalf("expected *panics.ErrRecovered, got %v", err)
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Errorf("expected both panics to be reported, got %v", err)
	}

	if diff := cmp.Diff([]string{"second:1"}, got); diff != "" {
		t.Errorf("callbacks mismatch (-want +got):\n%s", diff)
	}
	if v, err := f.Result(); v != 1 || err != nil {
		t.Errorf("Result() = %v, %v", v, err)
	}
	if v, err := derived.Result(); v != 2 || err != nil {
		t.Errorf("derived Result() = %v, %v", v, err)
	}
}

func TestThen(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	tests := []struct {
		name    string
		resolve func(*Future[int])
		fn      func(int) (string, error)
		want    string
		wantErr func(error) bool
	}{
		{
			name:    "maps the value",
			resolve: func(f *Future[int]) { f.fulfill(2) },
			fn:      func(v int) (string, error) { return strconv.Itoa(v * 2), nil },
			want:    "4",
		},
		{
			name:    "propagates rejection",
			resolve: func(f *Future[int]) { f.reject(errBoom) },
			fn:      func(int) (string, error) { panic("must not be called") },
			wantErr: func(err error) bool { return errors.Is(err, errBoom) },
		},
		{
			name:    "rejects with the error of fn",
			resolve: func(f *Future[int]) { f.fulfill(1) },
			fn:      func(int) (string, error) { return "", errBoom },
			wantErr: func(err error) bool { return errors.Is(err, errBoom) },
		},
		{
			name:    "rejects with the panic of fn",
			resolve: func(f *Future[int]) { f.fulfill(1) },
			fn:      func(int) (string, error) { panic("oops") },
			wantErr: func(err error) bool {
				var recovered *panics.ErrRecovered
				return errors.As(err, &recovered)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := &Future[int]{}
			next := Then(f, tt.fn)
			if next.Done() {
				t.Fatal("derived future must wait for the source")
			}
			tt.resolve(f)

			got, err := next.Result()
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Result() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChain(t *testing.T) {
	t.Parallel()

	t.Run("waits for the inner future", func(t *testing.T) {
		t.Parallel()

		f := &Future[int]{}
		inner := &Future[string]{}
		next := Chain(f, func(v int) (*Future[string], error) {
			return inner, nil
		})

		f.fulfill(1)
		if next.Done() {
			t.Fatal("chained future must wait for the inner future")
		}
		inner.fulfill("one")
		if v, err := next.Result(); v != "one" || err != nil {
			t.Errorf("Result() = %q, %v", v, err)
		}
	})

	t.Run("propagates rejection of the inner future", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		next := Chain(Resolved(1), func(v int) (*Future[string], error) {
			return Rejected[string](errBoom), nil
		})
		if _, err := next.Result(); !errors.Is(err, errBoom) {
			t.Errorf("expected errBoom, got %v", err)
		}
	})

	t.Run("nil inner future yields zero value", func(t *testing.T) {
		t.Parallel()

		next := Chain(Resolved(1), func(v int) (*Future[string], error) {
			return nil, nil
		})
		if v, err := next.Result(); v != "" || err != nil {
			t.Errorf("Result() = %q, %v", v, err)
		}
	})

	t.Run("rejects with the panic of fn", func(t *testing.T) {
		t.Parallel()

		next := Chain(Resolved(1), func(v int) (*Future[string], error) {
			panic("oops")
		})
		var recovered *panics.ErrRecovered
		if _, err := next.Result(); !errors.As(err, &recovered) {
			t.Errorf("expected *panics.ErrRecovered, got %v", err)
		}
	})
}

func TestAll(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		v, err := All[int]().Result()
		if err != nil {
			t.Fatal(err)
		}
		if v == nil || len(v) != 0 {
			t.Errorf("Result() = %#v, want empty slice", v)
		}
	})

	t.Run("keeps the order of the futures", func(t *testing.T) {
		t.Parallel()

		a, b, c := &Future[int]{}, &Future[int]{}, &Future[int]{}
		all := All(a, b, c)

		c.fulfill(3)
		a.fulfill(1)
		if all.Done() {
			t.Fatal("All must wait for every future")
		}
		b.fulfill(2)

		v, err := all.Result()
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]int{1, 2, 3}, v); diff != "" {
			t.Errorf("Result() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("first error in order", func(t *testing.T) {
		t.Parallel()

		errFirst, errSecond := errors.New("first"), errors.New("second")
		a, b := &Future[int]{}, &Future[int]{}
		all := All(Resolved(0), a, b)

		b.reject(errSecond)
		a.reject(errFirst)
		if _, err := all.Result(); !errors.Is(err, errFirst) {
			t.Errorf("expected errFirst, got %v", err)
		}
	})
}
