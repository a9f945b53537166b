package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := Open(context.Background(), filepath.Join(t.TempDir(), "ragmail.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestQuery_EmptyIndex(t *testing.T) {
	repo := openTestRepo(t)

	matches, err := repo.Query(context.Background(), []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", matches)
	}
}

func TestUpsertAndQuery_Ranking(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	records := []domain.Record{
		{ID: "chunk_0", Vector: []float32{1, 0, 0}, Text: "leave"},
		{ID: "chunk_1", Vector: []float32{0, 1, 0}, Text: "expenses"},
		{ID: "chunk_2", Vector: []float32{0.9, 0.1, 0}, Text: "holidays"},
	}
	for _, rec := range records {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("upsert %s: %v", rec.ID, err)
		}
	}

	matches, err := repo.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "chunk_0" || matches[1].ID != "chunk_2" {
		t.Errorf("order = %s, %s; want chunk_0, chunk_2", matches[0].ID, matches[1].ID)
	}
	if matches[0].Text != "leave" {
		t.Errorf("text = %q, want leave", matches[0].Text)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("scores not descending")
	}
}

func TestUpsert_Idempotent(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	rec := domain.Record{ID: "chunk_0", Vector: []float32{1, 0}, Text: "old"}
	for range 2 {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	rec.Text = "new"
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	matches, err := repo.Query(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if matches[0].Text != "new" {
		t.Errorf("text = %q, want new", matches[0].Text)
	}
}

func TestQuery_DimensionMismatch(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.Upsert(ctx, domain.Record{ID: "chunk_0", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_, err := repo.Query(ctx, []float32{1, 0, 0}, 10)
	if !errors.Is(err, domain.ErrIndexService) || !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrIndexService wrapping ErrDimensionMismatch, got %v", err)
	}
}

func TestUpsert_InvalidRecord(t *testing.T) {
	repo := openTestRepo(t)
	err := repo.Upsert(context.Background(), domain.Record{ID: "chunk_0"})
	if !errors.Is(err, domain.ErrIndexService) {
		t.Errorf("expected ErrIndexService, got %v", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragmail.db")
	ctx := context.Background()

	repo, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := repo.Upsert(ctx, domain.Record{ID: "chunk_0", Vector: []float32{1}, Text: "kept"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_ = repo.Close()

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	matches, err := reopened.Query(ctx, []float32{1}, 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "kept" {
		t.Errorf("matches = %+v", matches)
	}
}
