package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
	"github.com/copilotlabs/campaign-copilot/internal/store"
	"github.com/google/uuid"
)

// Orchestrator owns the session lifecycle and enforces stage ordering.
// Status transitions are one-directional: draft -> in_progress ->
// completed, with failed reachable from in_progress when a stage exhausts
// its retry budget. Regenerating a stage on a completed session appends to
// the history and replaces that stage's field; it never reopens the
// session.
type Orchestrator struct {
	repo   store.Repository
	agents map[domain.StageType]*StageAgent
	logger *slog.Logger

	// sessionLocks rejects concurrent stage runs per session: a stale
	// read-then-write could silently drop an earlier stage's result.
	sessionLocks sync.Map

	now func() time.Time
}

// NewOrchestrator creates an orchestrator over the given stage agents.
// Every stage in the pipeline order must have an agent.
func NewOrchestrator(repo store.Repository, agents []*StageAgent, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	byStage := make(map[domain.StageType]*StageAgent, len(agents))
	for _, a := range agents {
		byStage[a.Stage()] = a
	}
	for _, stage := range domain.StageOrder() {
		if _, ok := byStage[stage]; !ok {
			return nil, fmt.Errorf("no agent configured for stage %q", stage)
		}
	}
	return &Orchestrator{
		repo:   repo,
		agents: byStage,
		logger: logger,
		now:    time.Now,
	}, nil
}

// CreateSession validates the brief and persists a new draft session.
// The brief is immutable from here on.
func (o *Orchestrator) CreateSession(ctx context.Context, brief domain.CampaignBrief) (*domain.Session, error) {
	if err := brief.Validate(); err != nil {
		return nil, err
	}
	now := o.now().UTC()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		Status:    domain.StatusDraft,
		Brief:     brief,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	o.logger.Info("session created", "session_id", sess.ID, "industry", brief.Industry)
	return sess, nil
}

// GetSession loads a session with its history.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return o.repo.GetSession(ctx, sessionID)
}

// ListSessions loads all sessions, newest first.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	return o.repo.ListSessions(ctx)
}

// RunStage executes one stage for the session and returns the updated
// session. Stage errors propagate unchanged; the orchestrator only decides
// what they mean for the session status. A stage is reported successful
// only after its persistence write lands.
func (o *Orchestrator) RunStage(ctx context.Context, sessionID string, stage domain.StageType) (*domain.Session, error) {
	agent, ok := o.agents[stage]
	if !ok {
		return nil, &domain.ValidationError{Msg: fmt.Sprintf("unknown stage %q", stage)}
	}

	lock, _ := o.sessionLocks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, domain.ErrSessionBusy
	}
	defer func() {
		mu.Unlock()
		o.sessionLocks.Delete(sessionID)
	}()

	sess, err := o.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == domain.StatusFailed {
		return nil, &domain.ValidationError{Msg: "session has failed and cannot run further stages"}
	}

	// First stage start moves the session out of draft before the
	// long-latency generation call.
	if sess.Status == domain.StatusDraft {
		if err := o.repo.UpdateSessionStatus(ctx, sessionID, domain.StatusInProgress); err != nil {
			return nil, err
		}
		sess.Status = domain.StatusInProgress
	}

	artifact, runErr := agent.Run(ctx, sess)
	if runErr != nil {
		return o.handleStageFailure(ctx, sess, stage, runErr)
	}

	entry := domain.InteractionEntry{
		Stage:     stage,
		Timestamp: o.now().UTC(),
		Artifact:  *artifact,
	}
	status := o.nextStatus(sess.Status, stage)
	if err := o.repo.AppendStageResult(ctx, sessionID, entry, status); err != nil {
		// The generation call succeeded, but the in-memory artifact is not
		// authoritative until persisted, so the stage fails.
		return nil, err
	}

	o.logger.Info("stage completed",
		"session_id", sessionID, "stage", stage, "status", status)
	return o.repo.GetSession(ctx, sessionID)
}

// nextStatus computes the post-stage session status. Completing the final
// stage completes the session; a regeneration on a completed session keeps
// it completed.
func (o *Orchestrator) nextStatus(current domain.SessionStatus, stage domain.StageType) domain.SessionStatus {
	if current == domain.StatusCompleted {
		return domain.StatusCompleted
	}
	if stage == domain.StageContentCalendar {
		return domain.StatusCompleted
	}
	return domain.StatusInProgress
}

// handleStageFailure decides whether a stage error leaves the session
// recoverable. Only an exhausted retry budget (ServiceError) moves the
// session to failed; everything else keeps the accumulated artifacts and
// lets the caller retry the same stage.
func (o *Orchestrator) handleStageFailure(ctx context.Context, sess *domain.Session, stage domain.StageType, runErr error) (*domain.Session, error) {
	var se *domain.ServiceError
	if errors.As(runErr, &se) && sess.Status == domain.StatusInProgress {
		if err := o.repo.UpdateSessionStatus(ctx, sess.ID, domain.StatusFailed); err != nil {
			o.logger.Error("failed to mark session failed",
				"session_id", sess.ID, "stage", stage, "error", err)
		} else {
			o.logger.Warn("session failed after retry budget exhausted",
				"session_id", sess.ID, "stage", stage, "attempts", se.Attempts)
		}
		return nil, runErr
	}

	o.logger.Warn("stage failed, session remains recoverable",
		"session_id", sess.ID, "stage", stage, "error", runErr)
	return nil, runErr
}

// RunAll executes all four stages strictly in order, stopping at the first
// failure. It returns the session as far as it got, plus the error.
func (o *Orchestrator) RunAll(ctx context.Context, sessionID string) (*domain.Session, error) {
	var sess *domain.Session
	var err error
	for _, stage := range domain.StageOrder() {
		sess, err = o.RunStage(ctx, sessionID, stage)
		if err != nil {
			// Surface the partially-completed session alongside the error.
			current, getErr := o.repo.GetSession(ctx, sessionID)
			if getErr != nil {
				return nil, err
			}
			return current, err
		}
	}
	return sess, nil
}
