package ledger

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ambiware-labs/voxforge/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeralSkipsDisk(t *testing.T) {
	cfg := config.LedgerConfig{RetentionMode: "ephemeral"}
	l, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	if err := l.Record(context.Background(), Verdict{RunID: "r", ScenarioID: "s", Accepted: true}); err != nil {
		t.Fatalf("ephemeral record: %v", err)
	}
	verdicts, err := l.ListRunVerdicts(context.Background(), "r", 10)
	if err != nil {
		t.Fatalf("ephemeral list: %v", err)
	}
	if verdicts != nil {
		t.Fatalf("expected no stored verdicts, got %d", len(verdicts))
	}
}

func TestRecordAndQuery(t *testing.T) {
	cfg := config.LedgerConfig{
		Path:          filepath.Join(t.TempDir(), "ledger.db"),
		RetentionMode: "persistent",
	}
	l, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	if err := l.BeginRun(context.Background(), "run-1", "test"); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	accepted := Verdict{
		RunID:              "run-1",
		ScenarioID:         "sc-1",
		VoiceID:            "alice",
		Text:               "please pass the salt",
		Language:           "English",
		Accepted:           true,
		Intelligibility:    0.92,
		SpeakerConsistency: 0.96,
		SpeechQuality:      0.71,
		ArtifactPath:       "/output/utt_sc-1.wav",
	}
	rejected := Verdict{
		RunID:           "run-1",
		ScenarioID:      "sc-2",
		VoiceID:         "alice",
		Accepted:        false,
		Reason:          "intelligibility below threshold",
		Metric:          "intelligibility",
		Intelligibility: 0.41,
	}
	if err := l.Record(context.Background(), accepted); err != nil {
		t.Fatalf("record accepted: %v", err)
	}
	if err := l.Record(context.Background(), rejected); err != nil {
		t.Fatalf("record rejected: %v", err)
	}
	if err := l.FinishRun(context.Background(), "run-1"); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	verdicts, err := l.ListRunVerdicts(context.Background(), "run-1", 10)
	if err != nil {
		t.Fatalf("list verdicts: %v", err)
	}
	if len(verdicts) != 2 {
		t.Fatalf("expected 2 verdicts, got %d", len(verdicts))
	}
	if !verdicts[0].Accepted || verdicts[0].ScenarioID != "sc-1" {
		t.Fatalf("unexpected first verdict: %+v", verdicts[0])
	}
	if verdicts[0].SpeakerConsistency != 0.96 {
		t.Fatalf("scores not round-tripped: %+v", verdicts[0])
	}
	if verdicts[1].Accepted || verdicts[1].Reason != "intelligibility below threshold" {
		t.Fatalf("unexpected second verdict: %+v", verdicts[1])
	}

	n, err := l.CountAccepted(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("count accepted: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 accepted, got %d", n)
	}
}

func TestPruneByDaysAndRuns(t *testing.T) {
	cfg := config.LedgerConfig{
		Path:          filepath.Join(t.TempDir(), "ledger.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxRuns:       1,
	}
	l, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })

	l.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := l.BeginRun(context.Background(), "old-run", "test"); err != nil {
		t.Fatalf("begin old run: %v", err)
	}
	if err := l.Record(context.Background(), Verdict{RunID: "old-run", ScenarioID: "sc-old"}); err != nil {
		t.Fatalf("record old verdict: %v", err)
	}

	l.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := l.BeginRun(context.Background(), "new-run", "test"); err != nil {
		t.Fatalf("begin new run: %v", err)
	}
	if err := l.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	old, err := l.ListRunVerdicts(context.Background(), "old-run", 10)
	if err != nil {
		t.Fatalf("list old verdicts: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("expected old verdicts pruned, got %d", len(old))
	}
}
