package recordloader_test

import (
	"testing"

	"github.com/karupanerura/recordloader"
	"github.com/karupanerura/recordloader/source"
	"github.com/karupanerura/recordloader/source/memsource"
	"github.com/karupanerura/recordloader/source/sourcetest"
)

// newSource returns a recording source over the fixture posts and comments.
func newSource(tb testing.TB) *source.RecordingSource {
	tb.Helper()

	mem := memsource.New(sourcetest.Schema())
	for _, table := range sourcetest.Fixture() {
		for _, values := range table.Rows {
			if _, err := mem.Insert(table.Model, values); err != nil {
				tb.Fatal(err)
			}
		}
	}
	return &source.RecordingSource{Source: &source.LintSource{Source: mem}}
}

func mustLoad(tb testing.TB, l *recordloader.RecordLoader, key any) *recordloader.Future[[]recordloader.Row] {
	tb.Helper()

	f, err := l.Load(key)
	if err != nil {
		tb.Fatal(err)
	}
	return f
}

func mustResult[V any](tb testing.TB, f *recordloader.Future[V]) V {
	tb.Helper()

	v, err := f.Result()
	if err != nil {
		tb.Fatal(err)
	}
	return v
}
