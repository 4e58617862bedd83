package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execEngine drives an external CosyVoice wrapper: a JSON request on stdin,
// one JSON object with base64 PCM on stdout.
type execEngine struct {
	cmd    []string
	device string
	mu     sync.Mutex
}

type execRequest struct {
	Text      string `json:"text"`
	VoiceClip string `json:"voice_clip"`
	Device    string `json:"device"`
}

type execResponse struct {
	PCMBase64  string `json:"pcm_base64"`
	SampleRate int    `json:"sample_rate"`
}

func NewExecEngine(command, device string) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execEngine{cmd: args, device: device}, nil
}

func (e *execEngine) Render(ctx context.Context, text, voiceClip string) ([]byte, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{Text: text, VoiceClip: voiceClip, Device: e.device})
	if err != nil {
		return nil, 0, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, 0, fmt.Errorf("tts command failed: %w: %s", err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return nil, 0, fmt.Errorf("decode tts response: %w", err)
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return nil, 0, fmt.Errorf("decode tts pcm: %w", err)
	}
	if resp.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("tts response missing sample rate")
	}
	return pcm, resp.SampleRate, nil
}
