// Package voicebank indexes the fixed corpus of reference speaker clips.
// The bank is read-only shared state; the pipeline never mutates a clip.
package voicebank

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ambiware-labs/voxforge/internal/config"
)

// Voice is one reference speaker entry. ClipPath doubles as the synthesis
// style reference and the speaker-consistency ground truth.
type Voice struct {
	ID       string
	ClipPath string
}

type Bank struct {
	voices    map[string]Voice
	order     []string
	defaultID string
}

// Open scans the configured directory for reference WAV clips. The voice id
// is the clip filename without extension.
func Open(cfg config.VoiceBankConfig) (*Bank, error) {
	entries, err := os.ReadDir(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("read voice bank directory: %w", err)
	}
	b := &Bank{voices: make(map[string]Voice)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".wav") {
			continue
		}
		id := strings.TrimSuffix(name, filepath.Ext(name))
		b.voices[id] = Voice{ID: id, ClipPath: filepath.Join(cfg.Directory, name)}
		b.order = append(b.order, id)
	}
	if len(b.voices) == 0 {
		return nil, fmt.Errorf("voice bank %s contains no wav clips", cfg.Directory)
	}
	sort.Strings(b.order)

	b.defaultID = cfg.DefaultVoice
	if b.defaultID == "" {
		b.defaultID = b.order[0]
	}
	if _, ok := b.voices[b.defaultID]; !ok {
		return nil, fmt.Errorf("default voice %q not present in bank", b.defaultID)
	}
	return b, nil
}

func (b *Bank) Lookup(id string) (Voice, bool) {
	v, ok := b.voices[id]
	return v, ok
}

func (b *Bank) Default() Voice {
	return b.voices[b.defaultID]
}

// Pick deterministically assigns a voice by round-robin over the sorted ids.
func (b *Bank) Pick(n int) Voice {
	if n < 0 {
		n = -n
	}
	return b.voices[b.order[n%len(b.order)]]
}

func (b *Bank) Len() int { return len(b.order) }

func (b *Bank) IDs() []string {
	return append([]string(nil), b.order...)
}
