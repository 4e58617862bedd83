// Package mos predicts perceptual speech quality. Unlike the other
// evaluators this one is batched: the predictor amortizes well over GPU
// batches, so callers buffer utterances and flush whole batches through it.
package mos

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ambiware-labs/voxforge/internal/config"
	"github.com/ambiware-labs/voxforge/internal/pool"
	"github.com/ambiware-labs/voxforge/internal/synth"
)

type Evaluator struct {
	cfg    config.MOSConfig
	pool   *pool.Pool[Predictor]
	logger *slog.Logger
}

func New(ctx context.Context, cfg config.MOSConfig, logger *slog.Logger) (*Evaluator, error) {
	factory, err := predictorFactory(cfg)
	if err != nil {
		return nil, err
	}
	p, err := pool.New(ctx, pool.Options{
		Component: "mos",
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
		logger: logger.With(slog.String("component", "mos-evaluator")),
	}, nil
}

func predictorFactory(cfg config.MOSConfig) (pool.Factory[Predictor], error) {
	switch cfg.Mode {
	case "mock":
		return func(_ context.Context, _ string) (Predictor, error) {
			return NewMockPredictor(), nil
		}, nil
	case "exec":
		return func(_ context.Context, device string) (Predictor, error) {
			return NewExecPredictor(cfg.Command, device)
		}, nil
	default:
		return nil, fmt.Errorf("unknown mos mode %q", cfg.Mode)
	}
}

// EvaluateBatch scores the utterances in submission order, splitting the
// input into predictor calls of at most batch_size each.
func (e *Evaluator) EvaluateBatch(ctx context.Context, utts []*synth.Utterance) ([]float64, error) {
	scores := make([]float64, 0, len(utts))
	for start := 0; start < len(utts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(utts) {
			end = len(utts)
		}
		chunk := utts[start:end]
		paths := make([]string, len(chunk))
		for i, u := range chunk {
			paths[i] = u.Path()
		}

		var chunkScores []float64
		callStart := time.Now()
		err := e.pool.With(ctx, func(p Predictor) error {
			var predErr error
			chunkScores, predErr = p.PredictBatch(ctx, paths)
			return predErr
		})
		if err != nil {
			return nil, fmt.Errorf("predict mos batch of %d: %w", len(chunk), err)
		}
		if len(chunkScores) != len(chunk) {
			return nil, fmt.Errorf("predictor returned %d scores for batch of %d", len(chunkScores), len(chunk))
		}
		scores = append(scores, chunkScores...)
		e.logger.Debug("mos batch scored",
			slog.Int("batch", len(chunk)),
			slog.Duration("latency", time.Since(callStart)))
	}
	return scores, nil
}

func (e *Evaluator) BatchSize() int { return e.cfg.BatchSize }
