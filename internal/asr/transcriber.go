package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/ambiware-labs/voxforge/internal/config"
)

// Transcriber abstracts the ASR backend that re-transcribes synthesized
// audio.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

type mockTranscriber struct{}

func NewMockTranscriber() Transcriber { return &mockTranscriber{} }

func (m *mockTranscriber) Transcribe(_ context.Context, wavPath string) (string, error) {
	return fmt.Sprintf("[transcript of %s]", wavPath), nil
}

// execTranscriber shells out to a whisper CLI wrapper, one invocation per
// utterance.
type execTranscriber struct {
	cmd    []string
	cfg    config.ASRConfig
	device string
	mu     sync.Mutex
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecTranscriber(cfg config.ASRConfig, device string) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse asr command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("asr command is empty")
	}
	return &execTranscriber{cmd: args, cfg: cfg, device: device}, nil
}

func (r *execTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	args := append([]string{}, r.cmd[1:]...)
	args = append(args, "--audio", wavPath)
	if r.cfg.Language != "" {
		args = append(args, "--language", r.cfg.Language)
	}
	if r.device != "" {
		args = append(args, "--device", r.device)
	}

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("asr command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", fmt.Errorf("decode asr response: %w", err)
	}
	return resp.Text, nil
}
