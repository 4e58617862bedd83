package synth

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ambiware-labs/voxforge/internal/scenario"
)

// Engine is the contract a synthesis backend satisfies. One engine instance
// is pinned to one device; the pool hands instances out one holder at a time.
type Engine interface {
	// Render produces raw 16-bit mono PCM for text in the voice of the
	// reference clip, returning the engine's native sample rate.
	Render(ctx context.Context, text, voiceClip string) ([]byte, int, error)
}

// SynthesisError tags a backend failure with the scenario it was rendering.
type SynthesisError struct {
	ScenarioID string
	Err        error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize scenario %s: %v", e.ScenarioID, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Utterance is one synthesized rendering of a scenario. It owns its temp
// file: exactly one of Discard or Finalize runs, everything after is a no-op.
type Utterance struct {
	Scenario   *scenario.Scenario
	VoiceID    string
	PCM        []byte
	SampleRate int

	path string
	once sync.Once
}

func (u *Utterance) Path() string { return u.path }

// Discard deletes the temp artifact. Safe to call multiple times and after
// Finalize.
func (u *Utterance) Discard() error {
	var err error
	u.once.Do(func() {
		err = os.Remove(u.path)
	})
	return err
}

// Finalize moves the artifact to its accepted location, transferring
// ownership out of the utterance.
func (u *Utterance) Finalize(dest string) error {
	err := fmt.Errorf("utterance %s already finalized or discarded", u.Scenario.ID)
	u.once.Do(func() {
		err = os.Rename(u.path, dest)
	})
	return err
}
