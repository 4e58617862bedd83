// Package asr scores how intelligible a synthesized utterance is by
// re-transcribing it and comparing against the source script.
package asr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ambiware-labs/voxforge/internal/audio"
	"github.com/ambiware-labs/voxforge/internal/config"
	"github.com/ambiware-labs/voxforge/internal/pool"
	"github.com/ambiware-labs/voxforge/internal/synth"
)

type Evaluator struct {
	cfg    config.ASRConfig
	pool   *pool.Pool[Transcriber]
	logger *slog.Logger
}

func New(ctx context.Context, cfg config.ASRConfig, logger *slog.Logger) (*Evaluator, error) {
	factory, err := transcriberFactory(cfg)
	if err != nil {
		return nil, err
	}
	p, err := pool.New(ctx, pool.Options{
		Component: "asr",
		Size:      cfg.Workers,
		Devices:   cfg.Devices,
		LazyLoad:  cfg.LazyLoad,
	}, factory, logger)
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		cfg:    cfg,
		pool:   p,
		logger: logger.With(slog.String("component", "intelligibility-evaluator")),
	}, nil
}

func transcriberFactory(cfg config.ASRConfig) (pool.Factory[Transcriber], error) {
	switch cfg.Mode {
	case "mock":
		return func(_ context.Context, _ string) (Transcriber, error) {
			return NewMockTranscriber(), nil
		}, nil
	case "exec":
		return func(_ context.Context, device string) (Transcriber, error) {
			return NewExecTranscriber(cfg, device)
		}, nil
	default:
		return nil, fmt.Errorf("unknown asr mode %q", cfg.Mode)
	}
}

// Evaluate re-transcribes the utterance and returns a text-fidelity score in
// [0,1]. The backend expects a fixed input rate; audio at any other rate is
// resampled into a scratch file first.
func (e *Evaluator) Evaluate(ctx context.Context, utt *synth.Utterance) (float64, error) {
	wavPath := utt.Path()
	if utt.SampleRate != e.cfg.InputSampleRate {
		resampled, err := audio.Resample(utt.PCM, utt.SampleRate, e.cfg.InputSampleRate)
		if err != nil {
			return 0, fmt.Errorf("resample for asr: %w", err)
		}
		scratch, err := os.CreateTemp("", "asr_in_*.wav")
		if err != nil {
			return 0, fmt.Errorf("create asr scratch file: %w", err)
		}
		defer os.Remove(scratch.Name())
		if err := audio.WritePCMToWav(scratch, resampled, e.cfg.InputSampleRate); err != nil {
			scratch.Close()
			return 0, err
		}
		if err := scratch.Close(); err != nil {
			return 0, fmt.Errorf("close asr scratch file: %w", err)
		}
		wavPath = scratch.Name()
	}

	var transcript string
	start := time.Now()
	err := e.pool.With(ctx, func(t Transcriber) error {
		var trErr error
		transcript, trErr = t.Transcribe(ctx, wavPath)
		return trErr
	})
	if err != nil {
		return 0, fmt.Errorf("transcribe utterance %s: %w", utt.Scenario.ID, err)
	}

	score := Similarity(transcript, utt.Scenario.Text)
	e.logger.Debug("utterance transcribed",
		slog.String("scenario_id", utt.Scenario.ID),
		slog.Float64("intelligibility", score),
		slog.Duration("latency", time.Since(start)))
	return score, nil
}
