package memsource_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/karupanerura/recordloader"
	"github.com/karupanerura/recordloader/schema"
	"github.com/karupanerura/recordloader/source"
	"github.com/karupanerura/recordloader/source/memsource"
	"github.com/karupanerura/recordloader/source/sourcetest"
)

func provide(tb testing.TB, s recordloader.Schema, fixture []sourcetest.Table) (recordloader.DataSource, func()) {
	tb.Helper()

	src := memsource.New(s)
	for _, table := range fixture {
		for _, values := range table.Rows {
			if _, err := src.Insert(table.Model, values); err != nil {
				tb.Fatal(err)
			}
		}
	}
	return &source.LintSource{Source: src}, func() {}
}

func TestConformance(t *testing.T) {
	t.Parallel()
	sourcetest.TestAll(t, provide)
}

func TestInsert(t *testing.T) {
	t.Parallel()

	src := memsource.New(sourcetest.Schema())

	r, err := src.Insert("Post", map[string]any{"title": "first"})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := r.Attribute("id"); v != int64(1) {
		t.Errorf("auto increment id = %#v, want 1", v)
	}

	r, err = src.Insert("Post", map[string]any{"id": "10", "title": "tenth"})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := r.Attribute("id"); v != int64(10) {
		t.Errorf("casted id = %#v, want 10", v)
	}

	r, err = src.Insert("Post", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"id": int64(11), "title": nil}
	if diff := cmp.Diff(want, r.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
	if got := src.Len("Post"); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}
	if got := src.Len("Comment"); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

func TestInsert_Errors(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name   string
		src    *memsource.Source
		model  string
		values map[string]any
		want   error
	}{
		{
			name:   "unknown model",
			src:    memsource.New(sourcetest.Schema()),
			model:  "User",
			values: map[string]any{"id": 1},
			want:   recordloader.ErrUnknownModel,
		},
		{
			name:   "unknown attribute",
			src:    memsource.New(sourcetest.Schema()),
			model:  "Post",
			values: map[string]any{"id": 1, "body": "x"},
			want:   recordloader.ErrUnknownAttribute,
		},
		{
			name:   "uncastable value",
			src:    memsource.New(sourcetest.Schema()),
			model:  "Post",
			values: map[string]any{"id": "one"},
			want:   recordloader.ErrKeyCast,
		},
		{
			name:   "auto increment disabled",
			src:    memsource.New(sourcetest.Schema(), memsource.WithAutoIncrement(false)),
			model:  "Post",
			values: map[string]any{"title": "first"},
			want:   memsource.ErrMissingPrimaryKey,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := tt.src.Insert(tt.model, tt.values); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("duplicate key", func(t *testing.T) {
		t.Parallel()

		src := memsource.New(sourcetest.Schema())
		if _, err := src.Insert("Post", map[string]any{"id": 1}); err != nil {
			t.Fatal(err)
		}
		if _, err := src.Insert("Post", map[string]any{"id": int32(1)}); !errors.Is(err, memsource.ErrDuplicateKey) {
			t.Errorf("expected ErrDuplicateKey, got %v", err)
		}
	})

	t.Run("string primary key is not numbered", func(t *testing.T) {
		t.Parallel()

		tags := schema.MustNewSet(schema.New("Tag").WithPrimaryKey("name").Attribute("name", recordloader.String))
		if _, err := memsource.New(tags).Insert("Tag", map[string]any{}); !errors.Is(err, memsource.ErrMissingPrimaryKey) {
			t.Errorf("expected ErrMissingPrimaryKey, got %v", err)
		}
	})
}

type post struct {
	ID    int64  `db:"id,pk"`
	Title string `db:"title"`
}

func TestInsertStruct(t *testing.T) {
	t.Parallel()

	src := memsource.New(schema.MustNewSet(schema.MustReflect[post]("Post")))
	if _, err := src.InsertStruct("Post", &post{ID: 7, Title: "seventh"}); err != nil {
		t.Fatal(err)
	}
	if _, err := src.InsertStruct("Post", 7); !errors.Is(err, schema.ErrNotStruct) {
		t.Errorf("expected ErrNotStruct, got %v", err)
	}

	rows, err := src.FindRowsWhere(t.Context(), recordloader.Query{
		Model:  "Post",
		Column: recordloader.ColumnPath{Attribute: "title"},
		Keys:   []any{"seventh"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{7}, sourcetest.IDs(t, rows)); diff != "" {
		t.Errorf("FindRowsWhere() mismatch (-want +got):\n%s", diff)
	}
}

func TestFindRowsWhere_NullForeignKey(t *testing.T) {
	t.Parallel()

	src := memsource.New(sourcetest.Schema())
	if _, err := src.Insert("Comment", map[string]any{"id": 1, "state": "open"}); err != nil {
		t.Fatal(err)
	}

	rows, err := src.FindRowsWhere(t.Context(), recordloader.Query{
		Model:  "Comment",
		Column: recordloader.ColumnPath{Association: "post", Attribute: "id"},
		Keys:   []any{int64(1)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}

	post, ok := rows0(t, src).Association("post")
	if !ok || len(post) != 0 {
		t.Errorf("Association(post) = %v, %v", post, ok)
	}
}

func rows0(t *testing.T, src *memsource.Source) recordloader.Row {
	t.Helper()

	rows, err := src.FindRowsWhere(t.Context(), recordloader.Query{
		Model:  "Comment",
		Column: recordloader.ColumnPath{Attribute: "id"},
		Keys:   []any{int64(1)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	return rows[0]
}

func TestFindRowsWhere_UnknownAssociation(t *testing.T) {
	t.Parallel()

	src := memsource.New(sourcetest.Schema())
	_, err := src.FindRowsWhere(t.Context(), recordloader.Query{
		Model:  "Comment",
		Column: recordloader.ColumnPath{Association: "author", Attribute: "id"},
		Keys:   []any{int64(1)},
	})
	if !errors.Is(err, recordloader.ErrAssociationResolution) {
		t.Errorf("expected ErrAssociationResolution, got %v", err)
	}
}
