package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/grimoire-ai/grimoire/internal/log"
)

type execCall struct {
	sql  string
	args []any
}

type mockQuerier struct {
	execs    []execCall
	execErr  error
	queryErr error
	rows     *fakeRows
	rowScan  func(dest ...any) error
}

func (m *mockQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, m.execErr
}

func (m *mockQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.rows, nil
}

func (m *mockQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return rowFunc(m.rowScan)
}

type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

// fakeRows walks a fixed result set through the pgx.Rows interface.
type fakeRows struct {
	results []RetrievedChunk
	pos     int
	scanErr error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	return r.pos < len(r.results)
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	c := r.results[r.pos]
	r.pos++
	*dest[0].(*uuid.UUID) = c.ID
	*dest[1].(*string) = c.Title
	*dest[2].(*string) = c.Category
	*dest[3].(*string) = c.Source
	*dest[4].(*string) = c.Content
	*dest[5].(*float64) = c.Similarity
	return nil
}

func testStore(db querier) *Store {
	return &Store{db: db, logger: log.NewNop()}
}

func testRows(n int) []StoredChunk {
	rows := make([]StoredChunk, n)
	for i := range rows {
		rows[i] = StoredChunk{
			ID:        uuid.New(),
			Title:     "Flanking",
			Category:  "condition",
			Source:    "Core Rulebook",
			Content:   "You and an ally are on opposite sides.",
			Embedding: []float32{0.1, 0.2},
			SourceID:  "abc",
			Metadata:  map[string]any{"level": float64(1)},
		}
	}
	return rows
}

func TestBuildInsertWithEmbeddings(t *testing.T) {
	sql, args := buildInsert(testRows(2), true)

	if !strings.Contains(sql, "embedding") {
		t.Errorf("insert missing embedding column:\n%s", sql)
	}
	if !strings.Contains(sql, "($1, $2, $3, $4, $5, $6, $7, $8), ($9, $10, $11, $12, $13, $14, $15, $16)") {
		t.Errorf("placeholder layout wrong:\n%s", sql)
	}
	if len(args) != 16 {
		t.Errorf("args = %d, want 16", len(args))
	}
}

func TestBuildInsertWithoutEmbeddings(t *testing.T) {
	rows := testRows(1)
	rows[0].Embedding = nil
	sql, args := buildInsert(rows, false)

	if strings.Contains(sql, "embedding") {
		t.Errorf("insert should omit embedding column:\n%s", sql)
	}
	if len(args) != 7 {
		t.Errorf("args = %d, want 7", len(args))
	}
}

func TestWriteChunksBatches(t *testing.T) {
	db := &mockQuerier{}
	s := testStore(db)

	if err := s.WriteChunks(context.Background(), testRows(5), 2); err != nil {
		t.Fatalf("WriteChunks: %v", err)
	}
	if len(db.execs) != 3 {
		t.Fatalf("exec calls = %d, want 3 batches", len(db.execs))
	}
	// Batches of 2, 2, 1 rows at 8 args each.
	for i, want := range []int{16, 16, 8} {
		if len(db.execs[i].args) != want {
			t.Errorf("batch %d args = %d, want %d", i, len(db.execs[i].args), want)
		}
	}
}

func TestWriteChunksEmpty(t *testing.T) {
	db := &mockQuerier{}
	if err := testStore(db).WriteChunks(context.Background(), nil, 50); err != nil {
		t.Fatalf("WriteChunks: %v", err)
	}
	if len(db.execs) != 0 {
		t.Errorf("empty input reached the database")
	}
}

func TestWriteChunksError(t *testing.T) {
	db := &mockQuerier{execErr: errors.New("deadlock")}
	err := testStore(db).WriteChunks(context.Background(), testRows(1), 50)
	if err == nil || !strings.Contains(err.Error(), "insert batch") {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildSearchDefaults(t *testing.T) {
	sql, args := buildSearch([]float32{0.1}, searchParams{topK: DefaultTopK, threshold: DefaultSimilarityThreshold})

	if !strings.Contains(sql, "embedding IS NOT NULL") {
		t.Errorf("search must exclude rows without embeddings:\n%s", sql)
	}
	if strings.Contains(sql, "category =") {
		t.Errorf("unfiltered search mentions category:\n%s", sql)
	}
	if len(args) != 3 {
		t.Fatalf("args = %d, want 3", len(args))
	}
	if args[1] != DefaultSimilarityThreshold || args[2] != DefaultTopK {
		t.Errorf("args = %v", args)
	}
}

func TestBuildSearchCategoryFilter(t *testing.T) {
	sql, args := buildSearch([]float32{0.1}, searchParams{topK: 5, threshold: 0.5, category: "spell"})

	if !strings.Contains(sql, "category = $3") {
		t.Errorf("category filter missing:\n%s", sql)
	}
	if !strings.Contains(sql, "LIMIT $4") {
		t.Errorf("limit placeholder wrong:\n%s", sql)
	}
	if len(args) != 4 || args[2] != "spell" {
		t.Errorf("args = %v", args)
	}
}

func TestSearchOptions(t *testing.T) {
	p := searchParams{topK: DefaultTopK, threshold: DefaultSimilarityThreshold}
	for _, opt := range []SearchOption{WithTopK(3), WithThreshold(0.7), WithCategory("feat")} {
		opt(&p)
	}
	if p.topK != 3 || p.threshold != 0.7 || p.category != "feat" {
		t.Errorf("params = %+v", p)
	}

	WithTopK(-1)(&p)
	if p.topK != 3 {
		t.Errorf("non-positive top-k overrode the previous value")
	}
}

func TestSearchScansResults(t *testing.T) {
	want := []RetrievedChunk{
		{ID: uuid.New(), Title: "Flanking", Category: "condition", Source: "Core Rulebook", Content: "...", Similarity: 0.85},
		{ID: uuid.New(), Title: "Prone", Category: "condition", Source: "Core Rulebook", Content: "...", Similarity: 0.62},
	}
	db := &mockQuerier{rows: &fakeRows{results: want}}

	got, err := testStore(db).Search(context.Background(), []float32{0.1, 0.2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].Title != "Flanking" || got[0].Similarity != 0.85 {
		t.Errorf("first row = %+v", got[0])
	}
}

func TestSearchQueryError(t *testing.T) {
	db := &mockQuerier{queryErr: errors.New("connection reset")}
	if _, err := testStore(db).Search(context.Background(), []float32{0.1}); err == nil {
		t.Fatal("expected query error")
	}
}

func TestCount(t *testing.T) {
	db := &mockQuerier{rowScan: func(dest ...any) error {
		*dest[0].(*int64) = 42
		return nil
	}}
	n, err := testStore(db).Count(context.Background())
	if err != nil || n != 42 {
		t.Fatalf("Count = %d, %v; want 42", n, err)
	}
}

func TestClear(t *testing.T) {
	db := &mockQuerier{}
	if err := testStore(db).Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0].sql, "DELETE FROM rule_chunks") {
		t.Errorf("execs = %+v", db.execs)
	}
}

func TestNewNilPool(t *testing.T) {
	if _, err := New(nil, log.NewNop()); err == nil {
		t.Fatal("New(nil) expected error")
	}
}
