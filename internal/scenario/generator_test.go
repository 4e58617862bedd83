package scenario

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ambiware-labs/voxforge/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeCompleter struct {
	text string
	err  error
	last Request
}

func (f *fakeCompleter) Complete(_ context.Context, req Request) (string, error) {
	f.last = req
	return f.text, f.err
}

func TestGenerateTagsLanguageAndMetadata(t *testing.T) {
	fake := &fakeCompleter{text: "  Hei, how is the harbor today?  "}
	gen := NewGenerator(config.LLMConfig{ModelBal: "llama3.2:latest", MaxTokens: 128}, fake, newLogger())

	sc, err := gen.Generate(context.Background(), Seed{Topic: "harbor life", Language: "Norwegian"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Language != "Norwegian" {
		t.Fatalf("expected language tag, got %q", sc.Language)
	}
	if sc.Text != "Hei, how is the harbor today?" {
		t.Fatalf("expected trimmed text, got %q", sc.Text)
	}
	if sc.ID == "" || sc.PromptID == "" {
		t.Fatal("expected id and prompt id populated")
	}
	if sc.Model != "llama3.2:latest" {
		t.Fatalf("expected model name, got %q", sc.Model)
	}
	if sc.Seed.Topic != "harbor life" {
		t.Fatalf("expected seed preserved, got %+v", sc.Seed)
	}
	if !strings.Contains(fake.last.Prompt, "harbor life") || !strings.Contains(fake.last.Prompt, "Norwegian") {
		t.Fatalf("expected topic and language in prompt, got %q", fake.last.Prompt)
	}
}

func TestGenerateDefaultsLanguage(t *testing.T) {
	fake := &fakeCompleter{text: "hello"}
	gen := NewGenerator(config.LLMConfig{}, fake, newLogger())
	sc, err := gen.Generate(context.Background(), Seed{Topic: "weather"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Language != "English" {
		t.Fatalf("expected English default, got %q", sc.Language)
	}
}

func TestGenerateWrapsBackendError(t *testing.T) {
	backendErr := errors.New("backend down")
	fake := &fakeCompleter{err: backendErr}
	gen := NewGenerator(config.LLMConfig{}, fake, newLogger())

	_, err := gen.Generate(context.Background(), Seed{Topic: "storms", Language: "English"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %T", err)
	}
	if genErr.Seed.Topic != "storms" {
		t.Fatalf("expected seed preserved for retry, got %+v", genErr.Seed)
	}
	if !errors.Is(err, backendErr) {
		t.Fatal("expected wrapped backend error")
	}
}

func TestGenerateRejectsEmptyCompletion(t *testing.T) {
	fake := &fakeCompleter{text: "   "}
	gen := NewGenerator(config.LLMConfig{}, fake, newLogger())
	_, err := gen.Generate(context.Background(), Seed{Topic: "silence"})
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError for empty completion, got %v", err)
	}
}

func TestFastModePicksFastModel(t *testing.T) {
	fake := &fakeCompleter{text: "quick"}
	gen := NewGenerator(config.LLMConfig{FastMode: true, ModelFast: "tiny", ModelBal: "big"}, fake, newLogger())
	sc, err := gen.Generate(context.Background(), Seed{Topic: "speed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fake.last.Fast {
		t.Fatal("expected fast flag forwarded to backend")
	}
	if sc.Model != "tiny" {
		t.Fatalf("expected fast model recorded, got %q", sc.Model)
	}
}
