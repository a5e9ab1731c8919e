// sourcetest package provides generic test cases for data source implementations.
package sourcetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/karupanerura/recordloader"
	"github.com/karupanerura/recordloader/schema"
	"golang.org/x/sync/errgroup"
)

// Table is the fixture rows of one model, in natural order.
type Table struct {
	Model string
	Rows  []map[string]any
}

// Schema returns the schema of the fixture:
// Post(id, title) has many comments, Comment(id, post_id, state) belongs to post.
func Schema() *schema.Set {
	return schema.MustNewSet(
		schema.New("Post").
			Attribute("id", recordloader.Integer).
			Attribute("title", recordloader.String).
			HasMany("comments", "Comment", "post_id"),
		schema.New("Comment").
			Attribute("id", recordloader.Integer).
			Attribute("post_id", recordloader.Integer).
			Attribute("state", recordloader.String).
			BelongsTo("post", "Post", "post_id"),
	)
}

// Fixture returns the rows the provider must load into the data source.
func Fixture() []Table {
	return []Table{
		{
			Model: "Post",
			Rows: []map[string]any{
				{"id": int64(1), "title": "first"},
				{"id": int64(2), "title": "second"},
				{"id": int64(3), "title": "third"},
			},
		},
		{
			Model: "Comment",
			Rows: []map[string]any{
				{"id": int64(1), "post_id": int64(1), "state": "open"},
				{"id": int64(2), "post_id": int64(2), "state": "open"},
				{"id": int64(3), "post_id": int64(1), "state": "closed"},
				{"id": int64(4), "post_id": int64(2), "state": "open"},
				{"id": int64(5), "post_id": int64(1), "state": "open"},
			},
		},
	}
}

// Provider returns a data source with the given schema holding the fixture rows, and a release function.
type Provider func(tb testing.TB, s recordloader.Schema, fixture []Table) (recordloader.DataSource, func())

// IDs returns the "id" attribute of each row as int64.
func IDs(tb testing.TB, rows []recordloader.Row) []int64 {
	tb.Helper()

	ids := make([]int64, len(rows))
	for i, row := range rows {
		raw, ok := row.Attribute("id")
		if !ok {
			tb.Fatalf("row %d has no id", i)
		}
		id, err := recordloader.Integer.Cast(raw)
		if err != nil {
			tb.Fatalf("row %d: %v", i, err)
		}
		ids[i] = id.(int64)
	}
	return ids
}

// TestFindRowsWhere tests the query contract of the data source.
func TestFindRowsWhere(t *testing.T, provider Provider) {
	for _, tt := range []struct {
		name  string
		query recordloader.Query
		want  []int64
	}{
		{
			name: "direct column keeps natural order",
			query: recordloader.Query{
				Model:  "Comment",
				Column: recordloader.ColumnPath{Attribute: "post_id"},
				Keys:   []any{int64(2), int64(1)},
			},
			want: []int64{1, 2, 3, 4, 5},
		},
		{
			name: "direct column single key",
			query: recordloader.Query{
				Model:  "Comment",
				Column: recordloader.ColumnPath{Attribute: "post_id"},
				Keys:   []any{int64(1)},
			},
			want: []int64{1, 3, 5},
		},
		{
			name: "unknown keys",
			query: recordloader.Query{
				Model:  "Comment",
				Column: recordloader.ColumnPath{Attribute: "post_id"},
				Keys:   []any{int64(3), int64(99)},
			},
			want: []int64{},
		},
		{
			name: "primary key",
			query: recordloader.Query{
				Model:  "Post",
				Column: recordloader.ColumnPath{Attribute: "id"},
				Keys:   []any{int64(3), int64(1)},
			},
			want: []int64{1, 3},
		},
		{
			name: "where scalar",
			query: recordloader.Query{
				Model:  "Comment",
				Column: recordloader.ColumnPath{Attribute: "post_id"},
				Keys:   []any{int64(1)},
				Where:  recordloader.Where{"state": "open"},
			},
			want: []int64{1, 5},
		},
		{
			name: "where list",
			query: recordloader.Query{
				Model:  "Comment",
				Column: recordloader.ColumnPath{Attribute: "post_id"},
				Keys:   []any{int64(1), int64(2)},
				Where:  recordloader.Where{"state": []any{"closed", "draft"}},
			},
			want: []int64{3},
		},
		{
			name: "where empty list",
			query: recordloader.Query{
				Model:  "Comment",
				Column: recordloader.ColumnPath{Attribute: "post_id"},
				Keys:   []any{int64(1), int64(2)},
				Where:  recordloader.Where{"state": []any{}},
			},
			want: []int64{},
		},
		{
			name: "belongs to association",
			query: recordloader.Query{
				Model:  "Comment",
				Column: recordloader.ColumnPath{Association: "post", Attribute: "id"},
				Keys:   []any{int64(2)},
			},
			want: []int64{2, 4},
		},
		{
			name: "has many association",
			query: recordloader.Query{
				Model:  "Post",
				Column: recordloader.ColumnPath{Association: "comments", Attribute: "state"},
				Keys:   []any{"closed"},
			},
			want: []int64{1},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, release := provider(t, Schema(), Fixture())
			defer release()

			rows, err := src.FindRowsWhere(t.Context(), tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, IDs(t, rows)); diff != "" {
				t.Errorf("FindRowsWhere() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestAssociations tests the association traversal of rows returned by the data source.
func TestAssociations(t *testing.T, provider Provider) {
	t.Run("Associations", func(t *testing.T) {
		t.Parallel()

		src, release := provider(t, Schema(), Fixture())
		defer release()

		posts, err := src.FindRowsWhere(t.Context(), recordloader.Query{
			Model:  "Post",
			Column: recordloader.ColumnPath{Attribute: "id"},
			Keys:   []any{int64(1), int64(3)},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(posts) != 2 {
			t.Fatalf("expected 2 posts, got %d", len(posts))
		}

		comments, ok := posts[0].Association("comments")
		if !ok {
			t.Fatal("post has no comments association")
		}
		if diff := cmp.Diff([]int64{1, 3, 5}, IDs(t, comments)); diff != "" {
			t.Errorf("comments mismatch (-want +got):\n%s", diff)
		}

		comments, ok = posts[1].Association("comments")
		if !ok {
			t.Fatal("post has no comments association")
		}
		if len(comments) != 0 {
			t.Errorf("expected no comments, got %d", len(comments))
		}

		post, ok := comments0(t, src).Association("post")
		if !ok {
			t.Fatal("comment has no post association")
		}
		if diff := cmp.Diff([]int64{2}, IDs(t, post)); diff != "" {
			t.Errorf("post mismatch (-want +got):\n%s", diff)
		}

		if _, ok := posts[0].Association("author"); ok {
			t.Error("unknown association must not be found")
		}
	})
}

func comments0(t *testing.T, src recordloader.DataSource) recordloader.Row {
	t.Helper()

	rows, err := src.FindRowsWhere(t.Context(), recordloader.Query{
		Model:  "Comment",
		Column: recordloader.ColumnPath{Attribute: "id"},
		Keys:   []any{int64(4)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(rows))
	}
	return rows[0]
}

// TestCanceledContext tests that the data source fails with a done context.
func TestCanceledContext(t *testing.T, provider Provider) {
	t.Run("CanceledContext", func(t *testing.T) {
		t.Parallel()

		src, release := provider(t, Schema(), Fixture())
		defer release()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := src.FindRowsWhere(ctx, recordloader.Query{
			Model:  "Comment",
			Column: recordloader.ColumnPath{Attribute: "post_id"},
			Keys:   []any{int64(1)},
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestConcurrency tests that concurrent queries to the data source return consistent results.
func TestConcurrency(t *testing.T, provider Provider) {
	t.Run("Concurrency", func(t *testing.T) {
		t.Parallel()

		src, release := provider(t, Schema(), Fixture())
		defer release()

		q := recordloader.Query{
			Model:  "Comment",
			Column: recordloader.ColumnPath{Attribute: "post_id"},
			Keys:   []any{int64(1), int64(2)},
		}
		results := make([][]int64, 16)

		var eg errgroup.Group
		for i := range results {
			eg.Go(func() error {
				rows, err := src.FindRowsWhere(t.Context(), q)
				if err != nil {
					return err
				}
				results[i] = IDs(t, rows)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			t.Fatal(err)
		}

		for i, got := range results {
			if diff := cmp.Diff([]int64{1, 2, 3, 4, 5}, got); diff != "" {
				t.Errorf("result %d mismatch (-want +got):\n%s", i, diff)
			}
		}
	})
}

// TestAll runs every test case of the package.
func TestAll(t *testing.T, provider Provider) {
	TestFindRowsWhere(t, provider)
	TestAssociations(t, provider)
	TestCanceledContext(t, provider)
	TestConcurrency(t, provider)
}
