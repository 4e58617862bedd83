package mos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// Predictor estimates a mean opinion score for each WAV in one GPU batch.
type Predictor interface {
	PredictBatch(ctx context.Context, wavPaths []string) ([]float64, error)
}

type mockPredictor struct{}

func NewMockPredictor() Predictor { return &mockPredictor{} }

// The mock derives a stable score in [3,5) from the path so re-running an
// evaluation yields identical results.
func (m *mockPredictor) PredictBatch(_ context.Context, wavPaths []string) ([]float64, error) {
	scores := make([]float64, len(wavPaths))
	for i, p := range wavPaths {
		h := fnv.New32a()
		h.Write([]byte(p))
		scores[i] = 3 + float64(h.Sum32()%200)/100
	}
	return scores, nil
}

type execPredictor struct {
	cmd    []string
	device string
	mu     sync.Mutex
}

type execBatchRequest struct {
	Paths  []string `json:"paths"`
	Device string   `json:"device"`
}

type execBatchResponse struct {
	Scores []float64 `json:"scores"`
}

func NewExecPredictor(command, device string) (Predictor, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse mos command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("mos command empty")
	}
	return &execPredictor{cmd: args, device: device}, nil
}

func (p *execPredictor) PredictBatch(ctx context.Context, wavPaths []string) ([]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	payload, err := json.Marshal(execBatchRequest{Paths: wavPaths, Device: p.device})
	if err != nil {
		return nil, err
	}

	base := p.cmd[0]
	args := append([]string{}, p.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("mos command failed: %w: %s", err, stderr.String())
	}

	var resp execBatchResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, fmt.Errorf("decode mos response: %w", err)
	}
	if len(resp.Scores) != len(wavPaths) {
		return nil, fmt.Errorf("mos returned %d scores for %d inputs", len(resp.Scores), len(wavPaths))
	}
	return resp.Scores, nil
}
