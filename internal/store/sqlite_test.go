package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "copilot.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return repo
}

func testSession() *domain.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Session{
		ID:     "sess-1",
		Status: domain.StatusDraft,
		Brief: domain.CampaignBrief{
			Industry:       "saas",
			TargetAudience: "mid-market ops teams",
			Goals:          []string{"pipeline growth"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func audienceEntry(ts time.Time) domain.InteractionEntry {
	return domain.InteractionEntry{
		Stage:     domain.StageAudience,
		Timestamp: ts,
		Artifact: domain.StageArtifact{
			Stage:      domain.StageAudience,
			Confidence: 0.8,
			Reasoning:  "matched brief segments",
			AudienceInsights: &domain.AudienceInsights{
				Personas: []domain.Persona{{Name: "Ops Olivia", Description: "operations lead"}},
			},
		},
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()
	sess := testSession()

	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != domain.StatusDraft {
		t.Errorf("expected status draft, got %s", got.Status)
	}
	if got.Brief.Industry != "saas" {
		t.Errorf("brief did not round-trip: %+v", got.Brief)
	}
	if len(got.History) != 0 {
		t.Errorf("new session should have empty history, got %d entries", len(got.History))
	}
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	_, err := repo.GetSession(context.Background(), "missing")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestAppendStageResultIsAtomic(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()
	sess := testSession()
	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	ts := time.Now().UTC().Truncate(time.Second)
	if err := repo.AppendStageResult(ctx, sess.ID, audienceEntry(ts), domain.StatusInProgress); err != nil {
		t.Fatalf("AppendStageResult failed: %v", err)
	}

	got, err := repo.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != domain.StatusInProgress {
		t.Errorf("expected in_progress, got %s", got.Status)
	}
	if got.Campaign.AudienceInsights == nil {
		t.Fatal("campaign field was not set")
	}
	if len(got.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(got.History))
	}
	if got.History[0].Stage != domain.StageAudience {
		t.Errorf("unexpected history stage %s", got.History[0].Stage)
	}
	if got.History[0].Artifact.Confidence != 0.8 {
		t.Errorf("artifact did not round-trip: %+v", got.History[0].Artifact)
	}
}

func TestAppendStageResultUnknownSession(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	err := repo.AppendStageResult(context.Background(), "missing", audienceEntry(time.Now()), domain.StatusInProgress)
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRegenerationAppendsHistoryAndReplacesField(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()
	sess := testSession()
	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	ts := time.Now().UTC().Truncate(time.Second)
	first := audienceEntry(ts)
	if err := repo.AppendStageResult(ctx, sess.ID, first, domain.StatusInProgress); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	second := audienceEntry(ts.Add(time.Second))
	second.Artifact.AudienceInsights.Personas[0].Name = "Marketing Maya"
	if err := repo.AppendStageResult(ctx, sess.ID, second, domain.StatusInProgress); err != nil {
		t.Fatalf("second append failed: %v", err)
	}

	got, err := repo.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if len(got.History) != 2 {
		t.Fatalf("history should keep both artifacts, got %d", len(got.History))
	}
	if got.Campaign.AudienceInsights.Personas[0].Name != "Marketing Maya" {
		t.Errorf("campaign should hold the latest artifact, got %q", got.Campaign.AudienceInsights.Personas[0].Name)
	}
}

func TestFeedbackInsert(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	score := 5
	ev := &domain.FeedbackEvent{
		ID:                 "fb-1",
		Type:               domain.InteractionApprove,
		OriginalSuggestion: `{"personas":[]}`,
		Context:            domain.FeedbackContext{AgentType: domain.StageAudience, SessionID: "sess-1"},
		Score:              &score,
		CreatedAt:          time.Now().UTC(),
	}
	if err := repo.InsertFeedback(context.Background(), ev); err != nil {
		t.Fatalf("InsertFeedback failed: %v", err)
	}
}

func TestPatternLifecycle(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	p := &domain.LearnedPattern{
		ID:              "pat-1",
		AgentType:       domain.StageChannel,
		PatternData:     "email-heavy mixes correlate with approval",
		UsageCount:      1,
		SuccessRate:     0.5,
		ConfidenceScore: 0.5,
		LastUpdated:     now,
		CreatedAt:       now,
	}
	if err := repo.UpsertPattern(ctx, p); err != nil {
		t.Fatalf("UpsertPattern failed: %v", err)
	}

	if err := repo.IncrementPatternUsage(ctx, p.ID, now.Add(time.Second)); err != nil {
		t.Fatalf("IncrementPatternUsage failed: %v", err)
	}

	patterns, err := repo.ListPatterns(ctx, domain.StageChannel)
	if err != nil {
		t.Fatalf("ListPatterns failed: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if patterns[0].UsageCount != 2 {
		t.Errorf("expected usage 2, got %d", patterns[0].UsageCount)
	}

	// Stats write conditional on the usage count it was computed from.
	if err := repo.UpdatePatternStats(ctx, p.ID, 2, 3, 0.75, 0.6, now.Add(2*time.Second)); err != nil {
		t.Fatalf("UpdatePatternStats failed: %v", err)
	}

	// Stale expected usage is rejected, not merged.
	err = repo.UpdatePatternStats(ctx, p.ID, 2, 4, 0.8, 0.7, now.Add(3*time.Second))
	var pe *domain.PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError for stale stats write, got %v", err)
	}

	patterns, err = repo.ListPatterns(ctx, domain.StageChannel)
	if err != nil {
		t.Fatalf("ListPatterns failed: %v", err)
	}
	if patterns[0].UsageCount != 3 || patterns[0].SuccessRate != 0.75 {
		t.Errorf("stats did not land: %+v", patterns[0])
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	old := testSession()
	old.ID = "sess-old"
	old.CreatedAt = time.Now().Add(-time.Hour)
	if err := repo.CreateSession(ctx, old); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	recent := testSession()
	recent.ID = "sess-new"
	if err := repo.CreateSession(ctx, recent); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sessions, err := repo.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "sess-new" {
		t.Errorf("expected newest first, got %s", sessions[0].ID)
	}
}
