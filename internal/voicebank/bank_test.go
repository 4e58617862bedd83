package voicebank

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ambiware-labs/voxforge/internal/config"
)

func writeClip(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
}

func TestOpenIndexesWavClips(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "alice.wav")
	writeClip(t, dir, "bob.wav")
	writeClip(t, dir, "notes.txt")

	bank, err := Open(config.VoiceBankConfig{Directory: dir})
	if err != nil {
		t.Fatalf("open bank: %v", err)
	}
	if bank.Len() != 2 {
		t.Fatalf("expected 2 voices, got %d", bank.Len())
	}
	if _, ok := bank.Lookup("alice"); !ok {
		t.Fatal("expected alice in bank")
	}
	if _, ok := bank.Lookup("notes"); ok {
		t.Fatal("non-wav file should not be indexed")
	}
	if bank.Default().ID != "alice" {
		t.Fatalf("expected first sorted voice as default, got %s", bank.Default().ID)
	}
}

func TestOpenRejectsEmptyBank(t *testing.T) {
	if _, err := Open(config.VoiceBankConfig{Directory: t.TempDir()}); err == nil {
		t.Fatal("expected error for empty bank")
	}
}

func TestOpenRejectsUnknownDefault(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "alice.wav")
	if _, err := Open(config.VoiceBankConfig{Directory: dir, DefaultVoice: "carol"}); err == nil {
		t.Fatal("expected error for missing default voice")
	}
}

func TestPickIsDeterministicRoundRobin(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "alice.wav")
	writeClip(t, dir, "bob.wav")
	bank, err := Open(config.VoiceBankConfig{Directory: dir})
	if err != nil {
		t.Fatalf("open bank: %v", err)
	}
	if bank.Pick(0).ID != "alice" || bank.Pick(1).ID != "bob" || bank.Pick(2).ID != "alice" {
		t.Fatal("expected round-robin assignment over sorted ids")
	}
}
