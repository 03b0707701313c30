package neuralmem

import (
	"context"
	"math"
	"testing"
)

func TestScoreDefaultsWithoutOutcomes(t *testing.T) {
	cfg := DefaultConfig()

	// no outcomes and no usage: only the neutral 0.5 success rate contributes
	score := cfg.scoreFor(0, 0, 0, 0)
	if math.Abs(score-0.25) > 1e-9 {
		t.Errorf("expected 0.25, got %f", score)
	}
}

func TestScoreFormula(t *testing.T) {
	cfg := DefaultConfig()

	usageTerm := math.Log(5) / (math.Log(5) + 1)
	want := 0.75*0.5 + usageTerm*0.3
	got := cfg.scoreFor(4, 3, 1, 0)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, got)
	}

	// bridge spread adds the third term
	withBridges := cfg.scoreFor(4, 3, 1, 2)
	if withBridges <= got {
		t.Error("expected bridge spread to raise the score")
	}
}

func TestScoreMonotonicInSuccess(t *testing.T) {
	cfg := DefaultConfig()

	prev := -1.0
	for success := 0; success <= 20; success++ {
		score := cfg.scoreFor(25, success, 5, 1)
		if score < prev {
			t.Fatalf("score decreased from %f to %f at success=%d", prev, score, success)
		}
		prev = score
	}
}

func TestScoreClamped(t *testing.T) {
	cfg := Config{
		Dimensions:      4,
		BridgeNeighbors: 5,
		SuccessWeight:   2,
		UsageWeight:     2,
		BridgeWeight:    2,
	}

	if score := cfg.scoreFor(100, 100, 0, 10); score != 1 {
		t.Errorf("expected clamp to 1, got %f", score)
	}
}

func TestStaleScoreRecomputedOnGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, _ := store.UpsertPattern(ctx, "p", PatternFix, "x", "serviceA", nil)

	for i := 0; i < 3; i++ {
		store.RecordUsage(id, OutcomeSuccess)
	}
	store.RecordUsage(id, OutcomeFailure)

	var stale int
	store.DB().QueryRow(`SELECT score_stale FROM patterns WHERE id = ?`, id).Scan(&stale)
	if stale != 1 {
		t.Fatal("expected score to be marked stale after usage")
	}

	p, err := store.GetPattern("p")
	if err != nil {
		t.Fatalf("failed to get pattern: %v", err)
	}

	want := store.cfg.scoreFor(4, 3, 1, 0)
	if math.Abs(p.QualityScore-want) > 1e-9 {
		t.Errorf("expected recomputed score %f, got %f", want, p.QualityScore)
	}

	store.DB().QueryRow(`SELECT score_stale FROM patterns WHERE id = ?`, id).Scan(&stale)
	if stale != 0 {
		t.Error("expected stale flag cleared after get")
	}
}

func TestHigherSuccessRateScoresHigher(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	good, _ := store.UpsertPattern(ctx, "good", PatternFix, "x", "serviceA", nil)
	even, _ := store.UpsertPattern(ctx, "even", PatternFix, "x", "serviceA", nil)

	// same usage, different success rates: 0.75 vs 0.5
	for i := 0; i < 3; i++ {
		store.RecordUsage(good, OutcomeSuccess)
	}
	store.RecordUsage(good, OutcomeFailure)

	for i := 0; i < 2; i++ {
		store.RecordUsage(even, OutcomeSuccess)
	}
	for i := 0; i < 2; i++ {
		store.RecordUsage(even, OutcomeFailure)
	}

	pg, _ := store.GetPattern("good")
	pe, _ := store.GetPattern("even")

	if pg.QualityScore <= pe.QualityScore {
		t.Errorf("expected %f > %f", pg.QualityScore, pe.QualityScore)
	}
}

func TestRecomputeAllDirty(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a, _ := store.UpsertPattern(ctx, "a", PatternFix, "x", "serviceA", nil)
	b, _ := store.UpsertPattern(ctx, "b", PatternFix, "x", "serviceA", nil)

	store.RecordUsage(a, OutcomeSuccess)
	store.RecordUsage(b, OutcomeFailure)

	n, err := store.RecomputeAllDirty()
	if err != nil {
		t.Fatalf("failed to sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 recomputed scores, got %d", n)
	}

	var remaining int
	store.DB().QueryRow(`SELECT COUNT(*) FROM patterns WHERE score_stale = 1`).Scan(&remaining)
	if remaining != 0 {
		t.Errorf("expected no stale patterns after sweep, got %d", remaining)
	}
}
