package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/kailas-cloud/ragmail/internal/domain"
)

func TestQuery_Empty(t *testing.T) {
	matches, err := New().Query(context.Background(), []float32{1}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", matches)
	}
}

func TestUpsert_OverwriteKeepsOrder(t *testing.T) {
	repo := New()
	ctx := context.Background()

	for _, rec := range []domain.Record{
		{ID: "chunk_0", Vector: []float32{1, 0}, Text: "a"},
		{ID: "chunk_1", Vector: []float32{0, 1}, Text: "b"},
		{ID: "chunk_0", Vector: []float32{1, 1}, Text: "a2"},
	} {
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if repo.Len() != 2 {
		t.Errorf("Len = %d, want 2", repo.Len())
	}
	if !slices.Equal(repo.IDs(), []string{"chunk_0", "chunk_1"}) {
		t.Errorf("IDs = %v", repo.IDs())
	}
	if rec, _ := repo.Get("chunk_0"); rec.Text != "a2" {
		t.Errorf("chunk_0 text = %q, want a2", rec.Text)
	}
}

func TestUpsert_CopiesVector(t *testing.T) {
	repo := New()
	vec := []float32{1, 0}
	if err := repo.Upsert(context.Background(), domain.Record{ID: "x", Vector: vec}); err != nil {
		t.Fatal(err)
	}
	vec[0] = 42
	if rec, _ := repo.Get("x"); rec.Vector[0] != 1 {
		t.Error("stored vector aliases caller slice")
	}
}

func TestQuery_RankAndTopK(t *testing.T) {
	repo := New()
	ctx := context.Background()
	_ = repo.Upsert(ctx, domain.Record{ID: "far", Vector: []float32{0, 1}, Text: "far"})
	_ = repo.Upsert(ctx, domain.Record{ID: "near", Vector: []float32{1, 0.1}, Text: "near"})
	_ = repo.Upsert(ctx, domain.Record{ID: "exact", Vector: []float32{1, 0}, Text: "exact"})

	matches, err := repo.Query(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := domain.Texts(matches)
	if !slices.Equal(got, []string{"exact", "near"}) {
		t.Errorf("texts = %v", got)
	}
}

func TestErrors(t *testing.T) {
	repo := New()
	ctx := context.Background()
	_ = repo.Upsert(ctx, domain.Record{ID: "a", Vector: []float32{1, 0}})

	if _, err := repo.Query(ctx, []float32{1, 0, 0}, 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if err := repo.Upsert(ctx, domain.Record{ID: ""}); !errors.Is(err, domain.ErrIndexService) {
		t.Errorf("expected ErrIndexService, got %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := repo.Query(cancelled, []float32{1, 0}, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestConcurrentUpsert(t *testing.T) {
	repo := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.Upsert(context.Background(), domain.Record{ID: fmt.Sprintf("chunk_%d", i), Vector: []float32{1}})
		}()
	}
	wg.Wait()
	if repo.Len() != 50 {
		t.Errorf("Len = %d, want 50", repo.Len())
	}
}
