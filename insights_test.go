package neuralmem

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

func TestRefreshInsightsTopPatterns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	good, _ := store.UpsertPattern(ctx, "good", PatternFix, "x", "serviceA", nil)
	store.UpsertPattern(ctx, "weak", PatternFix, "x", "serviceA", nil)
	store.RecordUsage(good, OutcomeSuccess)
	store.RecordUsage(good, OutcomeSuccess)
	if _, err := store.RecomputeAllDirty(); err != nil {
		t.Fatalf("failed to recompute: %v", err)
	}

	if err := store.RefreshInsights(ctx); err != nil {
		t.Fatalf("failed to refresh insights: %v", err)
	}

	insights, err := store.GetInsights(true)
	if err != nil {
		t.Fatalf("failed to get insights: %v", err)
	}

	var top *GlobalInsight
	for _, ins := range insights {
		if ins.Type == InsightTopPatterns && ins.Scope == "ctx:serviceA" {
			top = ins
		}
	}
	if top == nil {
		t.Fatal("expected a top_patterns insight for serviceA")
	}

	var payload struct {
		Patterns []struct {
			Key   string  `json:"key"`
			Score float64 `json:"score"`
		} `json:"patterns"`
	}
	if err := json.Unmarshal([]byte(top.Payload), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if len(payload.Patterns) != 2 {
		t.Fatalf("expected 2 ranked patterns, got %d", len(payload.Patterns))
	}
	if payload.Patterns[0].Key != "good" {
		t.Errorf("expected 'good' ranked first, got %q", payload.Patterns[0].Key)
	}
}

func TestRefreshInsightsGlobalSuccessRate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, _ := store.UpsertPattern(ctx, "p", PatternFix, "x", "serviceA", nil)
	store.RecordUsage(id, OutcomeSuccess)
	store.RecordUsage(id, OutcomeSuccess)
	store.RecordUsage(id, OutcomeFailure)

	if err := store.RefreshInsights(ctx); err != nil {
		t.Fatalf("failed to refresh insights: %v", err)
	}

	insights, _ := store.GetInsights(true)
	var rate *GlobalInsight
	for _, ins := range insights {
		if ins.Type == InsightSuccessRate {
			rate = ins
		}
	}
	if rate == nil {
		t.Fatal("expected a success_rate insight")
	}
	if rate.Scope != "global" {
		t.Errorf("expected global scope, got %q", rate.Scope)
	}

	var payload struct {
		Rate float64 `json:"rate"`
	}
	json.Unmarshal([]byte(rate.Payload), &payload)
	if payload.Rate < 0.66 || payload.Rate > 0.67 {
		t.Errorf("expected rate ~0.667, got %f", payload.Rate)
	}
}

func TestRefreshInsightsSessionActivity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.StartSession("sess-1", "serviceA", "cli", "model-a")
	store.AppendInteraction(ctx, "sess-1", InteractionInput{Prompt: "p", TokensUsed: 100})
	store.AppendInteraction(ctx, "sess-1", InteractionInput{Prompt: "p", TokensUsed: 50})

	if err := store.RefreshInsights(ctx); err != nil {
		t.Fatalf("failed to refresh insights: %v", err)
	}

	insights, _ := store.GetInsights(true)
	var activity *GlobalInsight
	for _, ins := range insights {
		if ins.Type == InsightSessionActivity {
			activity = ins
		}
	}
	if activity == nil {
		t.Fatal("expected a session_activity insight")
	}

	var payload struct {
		Sessions     int `json:"sessions"`
		Interactions int `json:"interactions"`
		Tokens       int `json:"tokens"`
	}
	json.Unmarshal([]byte(activity.Payload), &payload)
	if payload.Sessions != 1 || payload.Interactions != 2 || payload.Tokens != 150 {
		t.Errorf("unexpected activity payload: %+v", payload)
	}
}

func TestRefreshInsightsAvoidsChurn(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.UpsertPattern(ctx, "p", PatternFix, "x", "serviceA", nil)

	if err := store.RefreshInsights(ctx); err != nil {
		t.Fatalf("failed to refresh: %v", err)
	}
	if err := store.RefreshInsights(ctx); err != nil {
		t.Fatalf("failed to re-refresh: %v", err)
	}

	insights, _ := store.GetInsights(true)
	var top *GlobalInsight
	for _, ins := range insights {
		if ins.Type == InsightTopPatterns {
			top = ins
		}
	}
	if top == nil {
		t.Fatal("expected a top_patterns insight")
	}

	// an unchanged payload bumps the validation counter instead of rewriting
	if top.TimesValidated != 1 {
		t.Errorf("expected times_validated 1, got %d", top.TimesValidated)
	}

	var count int
	store.DB().QueryRow(`SELECT COUNT(*) FROM global_insights WHERE insight_type = ?`, InsightTopPatterns).Scan(&count)
	if count != 1 {
		t.Errorf("expected a single insight row, got %d", count)
	}
}

func TestRefreshInsightsRetiresStale(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, _ := store.UpsertPattern(ctx, "p", PatternFix, "x", "serviceA", nil)
	if err := store.RefreshInsights(ctx); err != nil {
		t.Fatalf("failed to refresh: %v", err)
	}

	if _, err := store.DB().Exec(`DELETE FROM patterns WHERE id = ?`, id); err != nil {
		t.Fatalf("failed to delete pattern: %v", err)
	}
	if err := store.RefreshInsights(ctx); err != nil {
		t.Fatalf("failed to re-refresh: %v", err)
	}

	active, _ := store.GetInsights(true)
	for _, ins := range active {
		if ins.Type == InsightTopPatterns {
			t.Errorf("expected top_patterns insight retired, found %q", ins.Scope)
		}
	}

	// the retired row is still queryable with activeOnly disabled
	all, _ := store.GetInsights(false)
	found := false
	for _, ins := range all {
		if ins.Type == InsightTopPatterns && !ins.Active {
			found = true
		}
	}
	if !found {
		t.Error("expected retired insight to remain in history")
	}
}

func TestRefreshInsightsConcurrentWithWrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			key := fmt.Sprintf("p%03d", i)
			if _, err := store.UpsertPattern(ctx, key, PatternCode, "x", "serviceA", nil); err != nil {
				t.Errorf("failed to upsert %s: %v", key, err)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			if err := store.RefreshInsights(ctx); err != nil {
				t.Errorf("failed to refresh: %v", err)
			}
		}
	}()

	wg.Wait()

	var count int
	store.DB().QueryRow(`SELECT COUNT(*) FROM patterns`).Scan(&count)
	if count != 100 {
		t.Errorf("expected all 100 upserts to land, got %d", count)
	}

	if err := store.RefreshInsights(ctx); err != nil {
		t.Fatalf("failed final refresh: %v", err)
	}
	insights, err := store.GetInsights(true)
	if err != nil {
		t.Fatalf("failed to get insights: %v", err)
	}
	if len(insights) == 0 {
		t.Error("expected insights after concurrent refresh")
	}
}
