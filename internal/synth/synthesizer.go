// Package synth renders accepted scenarios into audio through a bounded
// engine pool and manages the resulting temp artifacts.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ambiware-labs/voxforge/internal/audio"
	"github.com/ambiware-labs/voxforge/internal/config"
	"github.com/ambiware-labs/voxforge/internal/pool"
	"github.com/ambiware-labs/voxforge/internal/scenario"
	"github.com/ambiware-labs/voxforge/internal/voicebank"
)

type Synthesizer struct {
	cfg     config.TTSConfig
	pool    *pool.Pool[Engine]
	tempDir string
	logger  *slog.Logger
}

// New builds the engine pool according to config. With lazy_load the heavy
// backend comes up on the first synthesis request instead of here.
func New(ctx context.Context, cfg config.TTSConfig, logger *slog.Logger) (*Synthesizer, error) {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tts temp dir: %w", err)
	}

	factory, err := engineFactory(cfg)
	if err != nil {
		return nil, err
	}
	enginePool, err := pool.New(ctx, pool.Options{
		Component: "tts",
		Size:      cfg.Workers,
		Devices:   cfg.Devices,
		LazyLoad:  cfg.LazyLoad,
	}, factory, logger)
	if err != nil {
		return nil, err
	}

	return &Synthesizer{
		cfg:     cfg,
		pool:    enginePool,
		tempDir: tempDir,
		logger:  logger.With(slog.String("component", "synthesizer")),
	}, nil
}

func engineFactory(cfg config.TTSConfig) (pool.Factory[Engine], error) {
	switch cfg.InUse {
	case "mock":
		return func(_ context.Context, device string) (Engine, error) {
			return NewMockEngine(device), nil
		}, nil
	case "cosyvoice":
		return func(_ context.Context, device string) (Engine, error) {
			return NewExecEngine(cfg.Command, device)
		}, nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.InUse)
	}
}

// Synthesize renders the scenario in the given voice and hands ownership of
// the temp artifact to the caller. The file appears atomically: it is
// written under a staging name and renamed only on success.
func (s *Synthesizer) Synthesize(ctx context.Context, sc *scenario.Scenario, voice voicebank.Voice) (*Utterance, error) {
	var pcm []byte
	var nativeRate int
	start := time.Now()
	err := s.pool.With(ctx, func(engine Engine) error {
		var renderErr error
		pcm, nativeRate, renderErr = engine.Render(ctx, sc.Text, voice.ClipPath)
		return renderErr
	})
	if err != nil {
		var initErr *pool.InitError
		if errors.As(err, &initErr) {
			return nil, err
		}
		return nil, &SynthesisError{ScenarioID: sc.ID, Err: err}
	}
	if len(pcm) == 0 {
		return nil, &SynthesisError{ScenarioID: sc.ID, Err: fmt.Errorf("engine produced no audio")}
	}

	resampled, err := audio.Resample(pcm, nativeRate, s.cfg.TargetSampleRate)
	if err != nil {
		return nil, &SynthesisError{ScenarioID: sc.ID, Err: err}
	}

	path, err := s.writeArtifact(sc.ID, resampled)
	if err != nil {
		return nil, &SynthesisError{ScenarioID: sc.ID, Err: err}
	}

	s.logger.Debug("scenario synthesized",
		slog.String("scenario_id", sc.ID),
		slog.String("voice", voice.ID),
		slog.Duration("latency", time.Since(start)))

	return &Utterance{
		Scenario:   sc,
		VoiceID:    voice.ID,
		PCM:        resampled,
		SampleRate: s.cfg.TargetSampleRate,
		path:       path,
	}, nil
}

func (s *Synthesizer) writeArtifact(scenarioID string, pcm []byte) (string, error) {
	staging, err := os.CreateTemp(s.tempDir, "utt_"+scenarioID+"_*.staging")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	stagingName := staging.Name()
	if err := audio.WritePCMToWav(staging, pcm, s.cfg.TargetSampleRate); err != nil {
		staging.Close()
		os.Remove(stagingName)
		return "", err
	}
	if err := staging.Close(); err != nil {
		os.Remove(stagingName)
		return "", fmt.Errorf("close staging file: %w", err)
	}
	final := filepath.Join(s.tempDir, fmt.Sprintf("utt_%s.wav", scenarioID))
	if err := os.Rename(stagingName, final); err != nil {
		os.Remove(stagingName)
		return "", fmt.Errorf("finalize staging file: %w", err)
	}
	return final, nil
}
