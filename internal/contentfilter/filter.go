// Package contentfilter gates generated scenarios on text quality before any
// synthesis work is spent on them.
package contentfilter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ambiware-labs/voxforge/internal/config"
	"github.com/ambiware-labs/voxforge/internal/scenario"
)

// Score holds the three judged text-quality axes, each in [0,1].
type Score struct {
	Consistency float64 `json:"consistency"`
	Coherence   float64 `json:"coherence"`
	Naturalness float64 `json:"naturalness"`
}

// Judge delegates the actual scoring to an external model.
type Judge interface {
	Judge(ctx context.Context, text string) (Score, error)
}

// Filter owns the thresholding policy; scoring itself is the judge's job.
type Filter struct {
	cfg    config.ContentFilterConfig
	judge  Judge
	logger *slog.Logger
}

func New(cfg config.ContentFilterConfig, judge Judge, logger *slog.Logger) *Filter {
	return &Filter{
		cfg:    cfg,
		judge:  judge,
		logger: logger.With(slog.String("component", "content-filter")),
	}
}

func (f *Filter) Score(ctx context.Context, sc *scenario.Scenario) (Score, error) {
	score, err := f.judge.Judge(ctx, sc.Text)
	if err != nil {
		return Score{}, fmt.Errorf("judge scenario %s: %w", sc.ID, err)
	}
	return score, nil
}

// Accept applies the conjunctive gate: every axis must meet its threshold.
// On rejection the reason is the first failing axis in the fixed order
// consistency, coherence, naturalness.
func (f *Filter) Accept(score Score) (bool, string) {
	if score.Consistency < f.cfg.ConsistencyThreshold {
		return false, "consistency"
	}
	if score.Coherence < f.cfg.CoherenceThreshold {
		return false, "coherence"
	}
	if score.Naturalness < f.cfg.NaturalnessThreshold {
		return false, "naturalness"
	}
	return true, ""
}
