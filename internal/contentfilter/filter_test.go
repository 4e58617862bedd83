package contentfilter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ambiware-labs/voxforge/internal/config"
	"github.com/ambiware-labs/voxforge/internal/scenario"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func defaultThresholds() config.ContentFilterConfig {
	return config.ContentFilterConfig{
		ConsistencyThreshold: 0.85,
		CoherenceThreshold:   0.85,
		NaturalnessThreshold: 0.85,
	}
}

func TestAcceptRequiresAllAxes(t *testing.T) {
	f := New(defaultThresholds(), NewMockJudge(Score{}), newLogger())

	cases := []struct {
		name   string
		score  Score
		accept bool
		reason string
	}{
		{"all pass", Score{0.9, 0.9, 0.9}, true, ""},
		{"exactly at threshold", Score{0.85, 0.85, 0.85}, true, ""},
		{"consistency fails", Score{0.8, 0.9, 0.9}, false, "consistency"},
		{"coherence fails", Score{0.9, 0.8, 0.9}, false, "coherence"},
		{"naturalness fails", Score{0.9, 0.9, 0.8}, false, "naturalness"},
		{"all fail reports first axis", Score{0.1, 0.1, 0.1}, false, "consistency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := f.Accept(tc.score)
			if ok != tc.accept {
				t.Fatalf("expected accept=%v, got %v", tc.accept, ok)
			}
			if reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, reason)
			}
		})
	}
}

func TestAcceptMixedThresholds(t *testing.T) {
	f := New(config.ContentFilterConfig{
		ConsistencyThreshold: 0.85,
		CoherenceThreshold:   0.9,
		NaturalnessThreshold: 0.6,
	}, NewMockJudge(Score{}), newLogger())

	ok, reason := f.Accept(Score{Consistency: 0.9, Coherence: 0.8, Naturalness: 0.7})
	if ok {
		t.Fatal("expected rejection")
	}
	if reason != "coherence" {
		t.Fatalf("expected coherence rejection, got %q", reason)
	}
}

type failingJudge struct{ err error }

func (f *failingJudge) Judge(context.Context, string) (Score, error) { return Score{}, f.err }

func TestScorePropagatesJudgeError(t *testing.T) {
	judgeErr := errors.New("judge offline")
	f := New(defaultThresholds(), &failingJudge{err: judgeErr}, newLogger())
	_, err := f.Score(context.Background(), &scenario.Scenario{ID: "s1", Text: "hello"})
	if !errors.Is(err, judgeErr) {
		t.Fatalf("expected wrapped judge error, got %v", err)
	}
}

func TestParseScoreExtractsJSON(t *testing.T) {
	score, err := parseScore(`Here you go: {"consistency":0.9,"coherence":0.8,"naturalness":0.7} cheers`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score.Consistency != 0.9 || score.Coherence != 0.8 || score.Naturalness != 0.7 {
		t.Fatalf("unexpected score %+v", score)
	}
}

func TestParseScoreRejectsGarbage(t *testing.T) {
	if _, err := parseScore("no scores here"); err == nil {
		t.Fatal("expected error for reply without JSON")
	}
	if _, err := parseScore(`{"consistency":1.5,"coherence":0.5,"naturalness":0.5}`); err == nil {
		t.Fatal("expected error for out-of-range score")
	}
}
