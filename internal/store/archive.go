// Package store archives rounds and flag candidates in SQLite so sessions can
// be inspected after the fact.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codefionn/flagrunner/internal/flag"
	"github.com/codefionn/flagrunner/internal/ledger"
)

// Archive handles SQLite operations for session archiving
type Archive struct {
	db       *sql.DB
	dbPath   string
	redactor Redactor
}

// Redactor masks secrets in text before it is written.
type Redactor interface {
	Redact(text string) string
}

// Option configures an Archive.
type Option func(*Archive)

// WithRedactor masks round text and candidate context before it is stored.
func WithRedactor(r Redactor) Option {
	return func(a *Archive) { a.redactor = r }
}

// SessionInfo describes one archived session.
type SessionInfo struct {
	ID        string
	Title     string
	Mode      string
	StartedAt time.Time
	Flag      string
	Verified  bool
}

// Open creates or opens the archive at dbPath.
func Open(dbPath string, opts ...Option) (*Archive, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// a single connection keeps :memory: databases coherent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	a := &Archive{db: db, dbPath: dbPath}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return a, nil
}

// Path returns the database location.
func (a *Archive) Path() string { return a.dbPath }

// Close closes the database connection
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		final_flag TEXT,
		verified BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS rounds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		round_number INTEGER NOT NULL,
		source TEXT NOT NULL,
		input TEXT NOT NULL,
		output TEXT NOT NULL,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		tools_used TEXT,
		tool_results TEXT,
		failed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL,
		UNIQUE (session_id, round_number),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS flag_candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		value TEXT NOT NULL,
		round_number INTEGER NOT NULL,
		source TEXT,
		UNIQUE (session_id, value),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_rounds_session ON rounds(session_id, round_number);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// StartSession registers a session. Starting an existing session is a no-op.
func (a *Archive) StartSession(ctx context.Context, info SessionInfo) error {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, title, mode, started_at) VALUES (?, ?, ?, ?)`,
		info.ID, info.Title, info.Mode, info.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to start session %s: %w", info.ID, err)
	}
	return nil
}

// FinishSession stores the final flag of a session.
func (a *Archive) FinishSession(ctx context.Context, sessionID, finalFlag string, verified bool) error {
	var value interface{}
	if finalFlag != "" {
		value = finalFlag
	}
	res, err := a.db.ExecContext(ctx,
		`UPDATE sessions SET final_flag = ?, verified = ? WHERE id = ?`, value, verified, sessionID)
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// RecordRound archives one ledger round.
func (a *Archive) RecordRound(ctx context.Context, sessionID string, r ledger.Round) error {
	r.Input, r.Output = a.redact(r.Input), a.redact(r.Output)
	if len(r.ToolResults) > 0 {
		masked := make([]string, len(r.ToolResults))
		for i, res := range r.ToolResults {
			masked[i] = a.redact(res)
		}
		r.ToolResults = masked
	}

	tools, err := json.Marshal(r.ToolsUsed)
	if err != nil {
		return fmt.Errorf("failed to encode tools: %w", err)
	}
	results, err := json.Marshal(r.ToolResults)
	if err != nil {
		return fmt.Errorf("failed to encode tool results: %w", err)
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO rounds (session_id, round_number, source, input, output, input_tokens, output_tokens, tools_used, tool_results, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.Number, string(r.Source), r.Input, r.Output, r.InputTokens, r.OutputTokens,
		string(tools), string(results), r.Failed, ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to record round %d: %w", r.Number, err)
	}
	return nil
}

// RecordCandidate archives a flag candidate once per session.
func (a *Archive) RecordCandidate(ctx context.Context, sessionID string, c flag.Candidate) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO flag_candidates (session_id, value, round_number, source) VALUES (?, ?, ?, ?)`,
		sessionID, c.Value, c.Round, a.redact(c.Source))
	if err != nil {
		return fmt.Errorf("failed to record candidate: %w", err)
	}
	return nil
}

// Rounds returns a session's rounds in order.
func (a *Archive) Rounds(ctx context.Context, sessionID string) ([]ledger.Round, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT round_number, source, input, output, input_tokens, output_tokens, tools_used, tool_results, failed, created_at
		FROM rounds WHERE session_id = ? ORDER BY round_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var rounds []ledger.Round
	for rows.Next() {
		var (
			r              ledger.Round
			source         string
			tools, results sql.NullString
		)
		if err := rows.Scan(&r.Number, &source, &r.Input, &r.Output, &r.InputTokens, &r.OutputTokens,
			&tools, &results, &r.Failed, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		r.Source = ledger.ParseSource(source)
		if err := decodeList(tools, &r.ToolsUsed); err != nil {
			return nil, err
		}
		if err := decodeList(results, &r.ToolResults); err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// Candidates returns a session's flag candidates in discovery order.
func (a *Archive) Candidates(ctx context.Context, sessionID string) ([]flag.Candidate, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT value, round_number, COALESCE(source, '') FROM flag_candidates WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []flag.Candidate
	for rows.Next() {
		var c flag.Candidate
		if err := rows.Scan(&c.Value, &c.Round, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Session loads a session's metadata.
func (a *Archive) Session(ctx context.Context, id string) (SessionInfo, error) {
	var (
		info      SessionInfo
		finalFlag sql.NullString
	)
	err := a.db.QueryRowContext(ctx,
		`SELECT id, title, mode, started_at, final_flag, verified FROM sessions WHERE id = ?`, id).
		Scan(&info.ID, &info.Title, &info.Mode, &info.StartedAt, &finalFlag, &info.Verified)
	if err != nil {
		return info, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	info.Flag = finalFlag.String
	return info, nil
}

func (a *Archive) redact(text string) string {
	if a.redactor == nil {
		return text
	}
	return a.redactor.Redact(text)
}

func decodeList(raw sql.NullString, dst *[]string) error {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		return fmt.Errorf("failed to decode archived list: %w", err)
	}
	return nil
}
