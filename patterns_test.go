package neuralmem

import (
	"context"
	"errors"
	"testing"
)

func TestUpsertAndGetPattern(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.UpsertPattern(ctx, "retry_backoff", PatternFix, `{"fix":"exponential backoff"}`, "serviceA", nil)
	if err != nil {
		t.Fatalf("failed to upsert pattern: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero pattern id")
	}

	p, err := store.GetPattern("retry_backoff")
	if err != nil {
		t.Fatalf("failed to get pattern: %v", err)
	}

	if p.Key != "retry_backoff" {
		t.Errorf("expected key 'retry_backoff', got %q", p.Key)
	}
	if p.Content != `{"fix":"exponential backoff"}` {
		t.Errorf("unexpected content: %q", p.Content)
	}
	if p.UsageCount != 0 || p.SuccessCount != 0 || p.FailureCount != 0 {
		t.Errorf("expected zero counters, got %d/%d/%d", p.UsageCount, p.SuccessCount, p.FailureCount)
	}
}

func TestUpsertReplacesContent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id1, _ := store.UpsertPattern(ctx, "cache_keys", PatternCode, "v1", "serviceA", nil)
	id2, err := store.UpsertPattern(ctx, "cache_keys", PatternCode, "v2", "serviceA", nil)
	if err != nil {
		t.Fatalf("failed to re-upsert: %v", err)
	}

	if id1 != id2 {
		t.Errorf("expected same id on re-upsert, got %d and %d", id1, id2)
	}

	p, _ := store.GetPattern("cache_keys")
	if p.Content != "v2" {
		t.Errorf("expected replaced content 'v2', got %q", p.Content)
	}

	var count int
	store.DB().QueryRow(`SELECT COUNT(*) FROM patterns WHERE pattern_key = 'cache_keys'`).Scan(&count)
	if count != 1 {
		t.Errorf("expected 1 row per pattern_key, got %d", count)
	}
}

func TestUpsertMergePolicy(t *testing.T) {
	store, err := Open(":memory:", WithConfig(testConfig()),
		WithMergePolicy(func(existing, incoming string) string {
			return existing + "\n" + incoming
		}))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	store.UpsertPattern(ctx, "notes", PatternArchitecture, "first", "serviceA", nil)
	store.UpsertPattern(ctx, "notes", PatternArchitecture, "second", "serviceA", nil)

	p, err := store.GetPattern("notes")
	if err != nil {
		t.Fatalf("failed to get pattern: %v", err)
	}
	if p.Content != "first\nsecond" {
		t.Errorf("expected merged content, got %q", p.Content)
	}
}

func TestGetPatternNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetPattern("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	store := openTestStore(t)

	_, err := store.UpsertPattern(context.Background(), "bad_dims", PatternCode, "x", "serviceA",
		[]float32{1, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}

	if _, err := store.GetPattern("bad_dims"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected no pattern written after rejection, got %v", err)
	}
}

func TestRecordUsage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, _ := store.UpsertPattern(ctx, "pool_sizing", PatternOptimization, "x", "serviceA", nil)

	for i := 0; i < 3; i++ {
		if err := store.RecordUsage(id, OutcomeSuccess); err != nil {
			t.Fatalf("failed to record success: %v", err)
		}
	}
	if err := store.RecordUsage(id, OutcomeFailure); err != nil {
		t.Fatalf("failed to record failure: %v", err)
	}

	p, err := store.GetPattern("pool_sizing")
	if err != nil {
		t.Fatalf("failed to get pattern: %v", err)
	}

	if p.UsageCount != 4 {
		t.Errorf("expected usage_count 4, got %d", p.UsageCount)
	}
	if p.SuccessCount != 3 || p.FailureCount != 1 {
		t.Errorf("expected 3 successes and 1 failure, got %d/%d", p.SuccessCount, p.FailureCount)
	}
	if p.LastUsed == nil {
		t.Error("expected last_used to be set")
	}
}

func TestRecordUsageUnknownPattern(t *testing.T) {
	store := openTestStore(t)

	err := store.RecordUsage(9999, OutcomeSuccess)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordUsageRejectsBadOutcome(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, _ := store.UpsertPattern(ctx, "p", PatternCode, "x", "serviceA", nil)
	if err := store.RecordUsage(id, Outcome("maybe")); err == nil {
		t.Error("expected error for unknown outcome")
	}
}

func TestSearchPatterns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.UpsertPattern(ctx, "error_handling", PatternFix, "wrap errors with context", "serviceA", nil)
	store.UpsertPattern(ctx, "connection_pool", PatternOptimization, "tune pool size", "serviceB", nil)

	results, err := store.SearchPatterns("error", 10)
	if err != nil {
		t.Fatalf("failed to search patterns: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Key != "error_handling" {
		t.Errorf("expected 'error_handling', got %q", results[0].Key)
	}
}
