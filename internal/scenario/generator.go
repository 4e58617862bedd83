// Package scenario produces candidate text scripts via a language-model
// backend.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ambiware-labs/voxforge/internal/config"
	"github.com/google/uuid"
)

const promptID = "scenario/v1"

const systemPrompt = "You write short, natural spoken-language scripts for " +
	"speech synthesis. Reply with the script text only, no stage directions."

// Generator turns seeds into scenarios. Backend failures are surfaced as
// *GenerationError with the seed preserved; the generator never retries on
// its own.
type Generator struct {
	cfg       config.LLMConfig
	completer Completer
	logger    *slog.Logger
}

func NewGenerator(cfg config.LLMConfig, completer Completer, logger *slog.Logger) *Generator {
	return &Generator{
		cfg:       cfg,
		completer: completer,
		logger:    logger.With(slog.String("component", "scenario-generator")),
	}
}

// NewCompleterFromConfig selects the backend implementation by mode.
func NewCompleterFromConfig(cfg config.LLMConfig) (Completer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockCompleter(), nil
	case "ollama":
		return NewOllamaCompleter(cfg.Endpoint, cfg.ModelFast, cfg.ModelBal), nil
	case "exec":
		return NewExecCompleter(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown llm mode %q", cfg.Mode)
	}
}

func (g *Generator) Generate(ctx context.Context, seed Seed) (*Scenario, error) {
	if seed.Language == "" {
		seed.Language = "English"
	}
	req := Request{
		Prompt:      buildPrompt(seed),
		System:      systemPrompt,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Fast:        g.cfg.FastMode,
	}

	start := time.Now()
	text, err := g.completer.Complete(ctx, req)
	if err != nil {
		return nil, &GenerationError{Seed: seed, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &GenerationError{Seed: seed, Err: fmt.Errorf("backend returned empty completion")}
	}

	sc := &Scenario{
		ID:       uuid.NewString(),
		Text:     text,
		Language: seed.Language,
		Seed:     seed,
		PromptID: promptID,
		Model:    g.modelName(),
		Created:  time.Now().UTC(),
	}
	g.logger.Debug("scenario generated",
		slog.String("scenario_id", sc.ID),
		slog.String("topic", seed.Topic),
		slog.Duration("latency", time.Since(start)))
	return sc, nil
}

func (g *Generator) modelName() string {
	if g.cfg.FastMode && g.cfg.ModelFast != "" {
		return g.cfg.ModelFast
	}
	if g.cfg.ModelBal != "" {
		return g.cfg.ModelBal
	}
	return g.cfg.Mode
}

func buildPrompt(seed Seed) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short spoken monologue in %s about %q.", seed.Language, seed.Topic)
	if seed.DialogueType != "" {
		fmt.Fprintf(&b, " Style: %s.", seed.DialogueType)
	}
	if seed.TemporalContext != "" {
		fmt.Fprintf(&b, " Time setting: %s.", seed.TemporalContext)
	}
	if seed.SpatialContext != "" {
		fmt.Fprintf(&b, " Place setting: %s.", seed.SpatialContext)
	}
	if seed.CulturalBackground != "" {
		fmt.Fprintf(&b, " Cultural background: %s.", seed.CulturalBackground)
	}
	if seed.CustomPrompt != "" {
		fmt.Fprintf(&b, " %s", seed.CustomPrompt)
	}
	return b.String()
}
