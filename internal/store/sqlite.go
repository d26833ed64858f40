package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/copilotlabs/campaign-copilot/internal/domain"
	_ "modernc.org/sqlite"
)

// isSQLiteConflict reports whether err is a SQLITE_BUSY or "database is
// locked" error. Both indicate lock contention and warrant a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // serializes session read-modify-append (see AppendStageResult)
	patternMu sync.Mutex // serializes pattern stat updates to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		brief_json TEXT NOT NULL,
		campaign_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS interactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		artifact_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id, seq);

	CREATE TABLE IF NOT EXISTS feedback_events (
		id TEXT PRIMARY KEY,
		interaction_type TEXT NOT NULL,
		original_suggestion TEXT NOT NULL,
		user_modification TEXT,
		agent_type TEXT NOT NULL,
		session_id TEXT,
		field TEXT,
		score INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_agent ON feedback_events(agent_type, created_at);

	CREATE TABLE IF NOT EXISTS learned_patterns (
		id TEXT PRIMARY KEY,
		agent_type TEXT NOT NULL,
		pattern_data TEXT NOT NULL,
		usage_count INTEGER NOT NULL DEFAULT 0,
		success_rate REAL NOT NULL DEFAULT 0.5,
		confidence REAL NOT NULL DEFAULT 0.5,
		last_updated INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_agent ON learned_patterns(agent_type);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func persistErr(op string, err error) error {
	return &domain.PersistenceError{Op: op, Err: err}
}

// CreateSession persists a new session in its initial state.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	briefJSON, err := json.Marshal(sess.Brief)
	if err != nil {
		return persistErr("create session", fmt.Errorf("marshal brief: %w", err))
	}
	campaignJSON, err := json.Marshal(sess.Campaign)
	if err != nil {
		return persistErr("create session", fmt.Errorf("marshal campaign: %w", err))
	}

	query := `
	INSERT INTO sessions (id, status, brief_json, campaign_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		sess.ID, string(sess.Status), string(briefJSON), string(campaignJSON),
		sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
	)
	if err != nil {
		return persistErr("create session", err)
	}
	return nil
}

// GetSession retrieves a session with its full interaction history.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	query := `
		SELECT id, status, brief_json, campaign_json, created_at, updated_at
		FROM sessions WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, persistErr("get session", err)
	}

	history, err := s.listInteractions(ctx, id)
	if err != nil {
		return nil, persistErr("get session history", err)
	}
	sess.History = history
	return sess, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var status, briefJSON, campaignJSON string
	var createdAt, updatedAt int64

	if err := row.Scan(&sess.ID, &status, &briefJSON, &campaignJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	sess.Status = domain.SessionStatus(status)
	if err := json.Unmarshal([]byte(briefJSON), &sess.Brief); err != nil {
		return nil, fmt.Errorf("unmarshal brief: %w", err)
	}
	if err := json.Unmarshal([]byte(campaignJSON), &sess.Campaign); err != nil {
		return nil, fmt.Errorf("unmarshal campaign: %w", err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0).UTC()
	sess.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &sess, nil
}

func (s *SQLiteStore) listInteractions(ctx context.Context, sessionID string) ([]domain.InteractionEntry, error) {
	query := `
		SELECT stage, artifact_json, created_at
		FROM interactions WHERE session_id = ? ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close interaction rows", "error", closeErr)
		}
	}()

	var entries []domain.InteractionEntry
	for rows.Next() {
		var stage, artifactJSON string
		var createdAt int64
		if err := rows.Scan(&stage, &artifactJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan interaction row: %w", err)
		}
		entry := domain.InteractionEntry{
			Stage:     domain.StageType(stage),
			Timestamp: time.Unix(createdAt, 0).UTC(),
		}
		if err := json.Unmarshal([]byte(artifactJSON), &entry.Artifact); err != nil {
			return nil, fmt.Errorf("unmarshal artifact: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return entries, nil
}

// ListSessions retrieves all sessions, newest first, without histories.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `
		SELECT id, status, brief_json, campaign_json, created_at, updated_at
		FROM sessions ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistErr("list sessions", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, persistErr("scan session row", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate sessions", err)
	}
	return sessions, nil
}

// UpdateSessionStatus sets the session status.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, id string, status domain.SessionStatus) error {
	query := `UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(status), time.Now().Unix(), id)
	if err != nil {
		return persistErr("update session status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("update session status", err)
	}
	if rows == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// AppendStageResult atomically appends one interaction entry, applies the
// artifact to the campaign record, and sets the status. The session mutex
// plus the transaction make the read-modify-append safe: a concurrent
// writer can never silently drop an earlier stage's result.
func (s *SQLiteStore) AppendStageResult(ctx context.Context, sessionID string, entry domain.InteractionEntry, status domain.SessionStatus) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.appendStageResultOnce(ctx, sessionID, entry, status)
		if err == nil {
			return nil
		}
		if isSQLiteConflict(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // exponential backoff: 100ms, 200ms, 400ms
			slog.Debug("AppendStageResult hit SQLite conflict, retrying",
				"session_id", sessionID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return err
}

func (s *SQLiteStore) appendStageResultOnce(ctx context.Context, sessionID string, entry domain.InteractionEntry, status domain.SessionStatus) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin append stage result", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			slog.Warn("failed to roll back stage result tx", "error", rbErr)
		}
	}()

	var campaignJSON string
	row := tx.QueryRowContext(ctx, `SELECT campaign_json FROM sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&campaignJSON); err == sql.ErrNoRows {
		return domain.ErrSessionNotFound
	} else if err != nil {
		return persistErr("read campaign for append", err)
	}

	var campaign domain.GeneratedCampaign
	if err := json.Unmarshal([]byte(campaignJSON), &campaign); err != nil {
		return persistErr("unmarshal campaign for append", err)
	}
	if err := campaign.Apply(&entry.Artifact); err != nil {
		return persistErr("apply artifact", err)
	}
	updated, err := json.Marshal(campaign)
	if err != nil {
		return persistErr("marshal updated campaign", err)
	}

	artifactJSON, err := json.Marshal(entry.Artifact)
	if err != nil {
		return persistErr("marshal artifact", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO interactions (session_id, stage, artifact_json, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, string(entry.Stage), string(artifactJSON), entry.Timestamp.Unix(),
	)
	if err != nil {
		return persistErr("insert interaction", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET campaign_json = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(updated), string(status), entry.Timestamp.Unix(), sessionID,
	)
	if err != nil {
		return persistErr("update session campaign", err)
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit stage result", err)
	}
	return nil
}

// InsertFeedback appends one feedback event.
func (s *SQLiteStore) InsertFeedback(ctx context.Context, ev *domain.FeedbackEvent) error {
	var score interface{}
	if ev.Score != nil {
		score = *ev.Score
	}
	var modification interface{}
	if ev.UserModification != "" {
		modification = ev.UserModification
	}

	query := `
	INSERT INTO feedback_events (
		id, interaction_type, original_suggestion, user_modification,
		agent_type, session_id, field, score, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		ev.ID, string(ev.Type), ev.OriginalSuggestion, modification,
		string(ev.Context.AgentType), ev.Context.SessionID, ev.Context.Field,
		score, ev.CreatedAt.Unix(),
	)
	if err != nil {
		return persistErr("insert feedback", err)
	}
	return nil
}

// ListPatterns retrieves all learned patterns for an agent type.
func (s *SQLiteStore) ListPatterns(ctx context.Context, agentType domain.StageType) ([]domain.LearnedPattern, error) {
	query := `
		SELECT id, agent_type, pattern_data, usage_count, success_rate, confidence, last_updated, created_at
		FROM learned_patterns WHERE agent_type = ?`

	rows, err := s.db.QueryContext(ctx, query, string(agentType))
	if err != nil {
		return nil, persistErr("list patterns", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close pattern rows", "error", closeErr)
		}
	}()

	var patterns []domain.LearnedPattern
	for rows.Next() {
		var p domain.LearnedPattern
		var at string
		var lastUpdated, createdAt int64
		if err := rows.Scan(&p.ID, &at, &p.PatternData, &p.UsageCount, &p.SuccessRate, &p.ConfidenceScore, &lastUpdated, &createdAt); err != nil {
			return nil, persistErr("scan pattern row", err)
		}
		p.AgentType = domain.StageType(at)
		p.LastUpdated = time.Unix(lastUpdated, 0).UTC()
		p.CreatedAt = time.Unix(createdAt, 0).UTC()
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate patterns", err)
	}
	return patterns, nil
}

// UpsertPattern creates or replaces a learned pattern.
func (s *SQLiteStore) UpsertPattern(ctx context.Context, p *domain.LearnedPattern) error {
	s.patternMu.Lock()
	defer s.patternMu.Unlock()

	query := `
	INSERT INTO learned_patterns (id, agent_type, pattern_data, usage_count, success_rate, confidence, last_updated, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		pattern_data = excluded.pattern_data,
		usage_count = excluded.usage_count,
		success_rate = excluded.success_rate,
		confidence = excluded.confidence,
		last_updated = excluded.last_updated`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, string(p.AgentType), p.PatternData,
		p.UsageCount, p.SuccessRate, p.ConfidenceScore,
		p.LastUpdated.Unix(), p.CreatedAt.Unix(),
	)
	if err != nil {
		return persistErr("upsert pattern", err)
	}
	return nil
}

// IncrementPatternUsage bumps usage_count and last_updated for one pattern.
func (s *SQLiteStore) IncrementPatternUsage(ctx context.Context, id string, now time.Time) error {
	s.patternMu.Lock()
	defer s.patternMu.Unlock()

	query := `UPDATE learned_patterns SET usage_count = usage_count + 1, last_updated = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, now.Unix(), id)
	if err != nil {
		return persistErr("increment pattern usage", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("increment pattern usage", err)
	}
	if rows == 0 {
		return persistErr("increment pattern usage", fmt.Errorf("pattern %s not found", id))
	}
	return nil
}

// UpdatePatternStats writes recomputed learning stats, conditional on the
// usage count the stats were derived from. A concurrent update that already
// advanced the count causes this write to fail rather than merge partially.
func (s *SQLiteStore) UpdatePatternStats(ctx context.Context, id string, expectedUsage int, usageCount int, successRate, confidence float64, now time.Time) error {
	s.patternMu.Lock()
	defer s.patternMu.Unlock()

	query := `
	UPDATE learned_patterns
	SET usage_count = ?, success_rate = ?, confidence = ?, last_updated = ?
	WHERE id = ? AND usage_count = ?`
	result, err := s.db.ExecContext(ctx, query,
		usageCount, successRate, confidence, now.Unix(), id, expectedUsage,
	)
	if err != nil {
		return persistErr("update pattern stats", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("update pattern stats", err)
	}
	if rows == 0 {
		return persistErr("update pattern stats", fmt.Errorf("pattern %s changed concurrently or does not exist", id))
	}
	return nil
}
