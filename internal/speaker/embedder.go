// Package speaker verifies that a synthesized utterance still sounds like
// the reference voice it was cloned from. It embeds both recordings and
// compares them with cosine similarity.
package speaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// Embedder maps a WAV file to a fixed-length voice embedding.
type Embedder interface {
	Embed(ctx context.Context, wavPath string) ([]float64, error)
}

const mockEmbeddingDim = 16

type mockEmbedder struct{}

func NewMockEmbedder() Embedder { return &mockEmbedder{} }

// The mock derives a unit vector from the path so the same file always
// embeds identically and distinct files rarely collide.
func (m *mockEmbedder) Embed(_ context.Context, wavPath string) ([]float64, error) {
	h := fnv.New64a()
	h.Write([]byte(wavPath))
	seed := h.Sum64()

	vec := make([]float64, mockEmbeddingDim)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float64(int64(seed>>32)) / float64(math.MaxInt32)
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

type execEmbedder struct {
	cmd    []string
	device string
	mu     sync.Mutex
}

type execEmbedRequest struct {
	Path   string `json:"path"`
	Device string `json:"device"`
}

type execEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewExecEmbedder(command, device string) (Embedder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speaker command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speaker command empty")
	}
	return &execEmbedder{cmd: args, device: device}, nil
}

func (e *execEmbedder) Embed(ctx context.Context, wavPath string) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execEmbedRequest{Path: wavPath, Device: e.device})
	if err != nil {
		return nil, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("speaker command failed: %w: %s", err, stderr.String())
	}

	var resp execEmbedResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, fmt.Errorf("decode speaker response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("speaker command returned empty embedding")
	}
	return resp.Embedding, nil
}
