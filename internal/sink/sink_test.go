package sink

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ambiware-labs/voxforge/internal/config"
	"github.com/ambiware-labs/voxforge/internal/scenario"
	"github.com/ambiware-labs/voxforge/internal/synth"
	"github.com/ambiware-labs/voxforge/internal/voicebank"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testUtterance(t *testing.T, tempDir string) *synth.Utterance {
	t.Helper()
	cfg := config.TTSConfig{InUse: "mock", Workers: 1, LazyLoad: true, TargetSampleRate: 16000, TempDir: tempDir}
	s, err := synth.New(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("test synthesizer: %v", err)
	}
	sc := &scenario.Scenario{ID: "sc-1", Text: "turn off the kitchen lights", Language: "English"}
	utt, err := s.Synthesize(context.Background(), sc, voicebank.Voice{ID: "alice"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	return utt
}

func TestPersistMovesArtifactAndWritesBundle(t *testing.T) {
	tempDir := t.TempDir()
	outDir := t.TempDir()
	utt := testUtterance(t, tempDir)
	stagedPath := utt.Path()

	s, err := New(outDir, newLogger())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	wavPath, err := s.Persist(utt, 0.91, 0.95, 0.72)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	if _, err := os.Stat(wavPath); err != nil {
		t.Fatalf("expected wav at %s: %v", wavPath, err)
	}
	if _, err := os.Stat(stagedPath); !os.IsNotExist(err) {
		t.Fatalf("expected temp artifact gone, stat err = %v", err)
	}
	if filepath.Base(wavPath) != "utt_sc-1.wav" {
		t.Fatalf("unexpected wav name %s", wavPath)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "utt_sc-1.json"))
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	if b.Text != "turn off the kitchen lights" || b.VoiceID != "alice" {
		t.Fatalf("unexpected bundle %+v", b)
	}
	if b.Intelligibility != 0.91 || b.SpeakerConsistency != 0.95 || b.SpeechQuality != 0.72 {
		t.Fatalf("scores not recorded: %+v", b)
	}
	if b.AudioFile != "utt_sc-1.wav" {
		t.Fatalf("bundle does not reference wav: %+v", b)
	}
}

func TestPersistBundleFailureLeavesNoOrphan(t *testing.T) {
	tempDir := t.TempDir()
	outDir := t.TempDir()
	utt := testUtterance(t, tempDir)

	s, err := New(outDir, newLogger())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	// A directory squatting on the bundle path makes the bundle write fail.
	if err := os.Mkdir(filepath.Join(outDir, "utt_sc-1.json"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if _, err := s.Persist(utt, 0.9, 0.9, 0.9); err == nil {
		t.Fatal("expected persist to fail on bundle write")
	}
	if _, err := os.Stat(filepath.Join(outDir, "utt_sc-1.wav")); !os.IsNotExist(err) {
		t.Fatalf("wav must not land in output dir without its bundle, stat err = %v", err)
	}
	if _, err := os.Stat(utt.Path()); err != nil {
		t.Fatalf("utterance must still own its temp artifact: %v", err)
	}
	if err := utt.Discard(); err != nil {
		t.Fatalf("discard after failed persist: %v", err)
	}
	if _, err := os.Stat(utt.Path()); !os.IsNotExist(err) {
		t.Fatalf("expected temp artifact removed by discard, stat err = %v", err)
	}
}

func TestPersistedUtteranceSurvivesDiscard(t *testing.T) {
	utt := testUtterance(t, t.TempDir())
	s, err := New(t.TempDir(), newLogger())
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	wavPath, err := s.Persist(utt, 0.9, 0.9, 0.9)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	// Pipeline cleanup runs Discard on every utterance; a persisted one
	// must keep its output file.
	if err := utt.Discard(); err != nil {
		t.Fatalf("discard after persist: %v", err)
	}
	if _, err := os.Stat(wavPath); err != nil {
		t.Fatalf("output wav removed by discard: %v", err)
	}
}
