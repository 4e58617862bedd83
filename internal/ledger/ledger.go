// Package ledger records every quality verdict in SQLite so a run can be
// audited after the fact: which scenarios were tried, what each evaluator
// scored, and why rejected samples were dropped.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ambiware-labs/voxforge/internal/config"
	_ "modernc.org/sqlite"
)

// Verdict is one recorded accept/reject decision.
type Verdict struct {
	ID         int64
	RunID      string
	ScenarioID string
	VoiceID    string
	Text       string
	Language   string
	Accepted   bool
	Reason     string
	Metric     string

	Intelligibility    float64
	SpeakerConsistency float64
	SpeechQuality      float64

	ArtifactPath string
	CreatedAt    time.Time
}

// Ledger wraps a SQLite-backed verdict store.
type Ledger struct {
	db    *sql.DB
	cfg   config.LedgerConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the ledger according to config. In ephemeral mode every
// write is a no-op and nothing touches disk.
func Open(ctx context.Context, cfg config.LedgerConfig, log *slog.Logger) (*Ledger, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Ledger{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	l := &Ledger{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := l.vacuum(ctx); err != nil {
			log.Warn("ledger vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := l.Prune(ctx); err != nil {
		log.Warn("ledger prune on start failed", slog.String("error", err.Error()))
	}

	return l, nil
}

func (l *Ledger) initSchema(ctx context.Context) error {
	if l.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    environment TEXT,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS verdicts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    scenario_id TEXT NOT NULL,
    voice_id TEXT,
    text TEXT,
    language TEXT,
    accepted INTEGER NOT NULL,
    reason TEXT,
    metric TEXT,
    intelligibility REAL,
    speaker_consistency REAL,
    speech_quality REAL,
    artifact_path TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_verdicts_run_created ON verdicts(run_id, created_at);
`
	_, err := l.db.ExecContext(ctx, ddl)
	return err
}

func (l *Ledger) vacuum(ctx context.Context) error {
	if l.db == nil {
		return nil
	}
	_, err := l.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// BeginRun ensures a run row exists.
func (l *Ledger) BeginRun(ctx context.Context, runID, environment string) error {
	if l.cfg.RetentionMode == "ephemeral" || l.db == nil {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, environment, started_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET environment=excluded.environment`,
		runID, environment, l.clock().UTC())
	return err
}

// FinishRun stamps the run's completion time.
func (l *Ledger) FinishRun(ctx context.Context, runID string) error {
	if l.cfg.RetentionMode == "ephemeral" || l.db == nil {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE run_id = ?`, l.clock().UTC(), runID)
	return err
}

// Record writes one verdict into the ledger.
func (l *Ledger) Record(ctx context.Context, v Verdict) error {
	if l.cfg.RetentionMode == "ephemeral" || l.db == nil {
		return nil
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = l.clock().UTC()
	}
	accepted := 0
	if v.Accepted {
		accepted = 1
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO verdicts(run_id, scenario_id, voice_id, text, language, accepted, reason, metric,
		                      intelligibility, speaker_consistency, speech_quality, artifact_path, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.RunID, v.ScenarioID, v.VoiceID, v.Text, v.Language, accepted, v.Reason, v.Metric,
		v.Intelligibility, v.SpeakerConsistency, v.SpeechQuality, v.ArtifactPath, v.CreatedAt)
	return err
}

// ListRunVerdicts retrieves up to limit verdicts for a run ordered ascending by time.
func (l *Ledger) ListRunVerdicts(ctx context.Context, runID string, limit int) ([]Verdict, error) {
	if l.cfg.RetentionMode == "ephemeral" || l.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, run_id, scenario_id, voice_id, text, language, accepted, reason, metric,
		        intelligibility, speaker_consistency, speech_quality, artifact_path, created_at
		 FROM verdicts WHERE run_id = ? ORDER BY created_at ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var verdicts []Verdict
	for rows.Next() {
		var v Verdict
		var accepted int
		var created string
		if err := rows.Scan(&v.ID, &v.RunID, &v.ScenarioID, &v.VoiceID, &v.Text, &v.Language,
			&accepted, &v.Reason, &v.Metric,
			&v.Intelligibility, &v.SpeakerConsistency, &v.SpeechQuality,
			&v.ArtifactPath, &created); err != nil {
			return nil, err
		}
		v.Accepted = accepted != 0
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			v.CreatedAt = ts
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}

// CountAccepted returns how many samples a run accepted so far.
func (l *Ledger) CountAccepted(ctx context.Context, runID string) (int, error) {
	if l.cfg.RetentionMode == "ephemeral" || l.db == nil {
		return 0, nil
	}
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verdicts WHERE run_id = ? AND accepted = 1`, runID).Scan(&n)
	return n, err
}

// Prune applies configured retention (called on startup and can be scheduled).
func (l *Ledger) Prune(ctx context.Context) error {
	if l.cfg.RetentionMode == "ephemeral" || l.db == nil {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if l.cfg.RetentionDays > 0 {
		cutoff := l.clock().Add(-time.Duration(l.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM verdicts WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if l.cfg.MaxRuns > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (
			SELECT run_id FROM runs ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)`, l.cfg.MaxRuns)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
