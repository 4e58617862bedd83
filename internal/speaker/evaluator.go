package speaker

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/ambiware-labs/voxforge/internal/config"
	"github.com/ambiware-labs/voxforge/internal/pool"
	"github.com/ambiware-labs/voxforge/internal/synth"
)

type Evaluator struct {
	cfg    config.SpeakerConfig
	pool   *pool.Pool[Embedder]
	logger *slog.Logger
}

func New(ctx context.Context, cfg config.SpeakerConfig, logger *slog.Logger) (*Evaluator, error) {
	factory, err := embedderFactory(cfg)
	if err != nil {
		return nil, err
	}
	p, err := pool.New(ctx, pool.Options{
		Component: "speaker",
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
		logger: logger.With(slog.String("component", "speaker-evaluator")),
	}, nil
}

func embedderFactory(cfg config.SpeakerConfig) (pool.Factory[Embedder], error) {
	switch cfg.Mode {
	case "mock":
		return func(_ context.Context, _ string) (Embedder, error) {
			return NewMockEmbedder(), nil
		}, nil
	case "exec":
		return func(_ context.Context, device string) (Embedder, error) {
			return NewExecEmbedder(cfg.Command, device)
		}, nil
	default:
		return nil, fmt.Errorf("unknown speaker mode %q", cfg.Mode)
	}
}

// Evaluate embeds the utterance and its reference clip and returns their
// cosine similarity clamped to [0,1].
func (e *Evaluator) Evaluate(ctx context.Context, utt *synth.Utterance, referenceClip string) (float64, error) {
	var uttVec, refVec []float64
	err := e.pool.With(ctx, func(emb Embedder) error {
		var embErr error
		if uttVec, embErr = emb.Embed(ctx, utt.Path()); embErr != nil {
			return fmt.Errorf("embed utterance: %w", embErr)
		}
		if refVec, embErr = emb.Embed(ctx, referenceClip); embErr != nil {
			return fmt.Errorf("embed reference: %w", embErr)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	sim, err := CosineSimilarity(uttVec, refVec)
	if err != nil {
		return 0, err
	}
	if sim < e.cfg.SimilarityThreshold {
		e.logger.Debug("speaker similarity below advisory threshold",
			slog.String("scenario_id", utt.Scenario.ID),
			slog.Float64("similarity", sim),
			slog.Float64("threshold", e.cfg.SimilarityThreshold))
	}
	return sim, nil
}

// CosineSimilarity clamps to [0,1]: anti-correlated voices carry no more
// signal than uncorrelated ones for an accept decision.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty embeddings")
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("zero-magnitude embedding")
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0, nil
	}
	if sim > 1 {
		return 1, nil
	}
	return sim, nil
}
