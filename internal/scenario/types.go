package scenario

import (
	"context"
	"fmt"
	"time"
)

// Scenario is one generated text script intended to be spoken. Immutable
// once created.
type Scenario struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Seed     Seed      `json:"seed"`
	PromptID string    `json:"prompt_id"`
	Model    string    `json:"model"`
	Created  time.Time `json:"created_at"`
}

// Seed carries the high-level parameters a scenario is generated from.
type Seed struct {
	Topic              string `json:"topic"`
	Language           string `json:"language"`
	DialogueType       string `json:"dialogue_type,omitempty"`
	TemporalContext    string `json:"temporal_context,omitempty"`
	SpatialContext     string `json:"spatial_context,omitempty"`
	CulturalBackground string `json:"cultural_background,omitempty"`
	CustomPrompt       string `json:"custom_prompt,omitempty"`
}

// GenerationError wraps a language-model backend failure. The seed is kept
// so the caller can retry the same scenario.
type GenerationError struct {
	Seed Seed
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate scenario for topic %q: %v", e.Seed.Topic, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Request describes a single completion call to the backend.
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	Fast        bool
}

// Completer is the narrow contract every language-model backend satisfies.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}
