// Package qualityfilter makes the final accept decision for a synthesized
// utterance from the three evaluator scores. A sample passes only when
// every metric that was successfully measured clears its threshold; a
// metric that failed to evaluate rejects the sample outright.
package qualityfilter

import (
	"fmt"
	"log/slog"

	"github.com/ambiware-labs/voxforge/internal/config"
)

// Metric names a quality axis. The values double as rejection reasons in
// ledger rows and bus events.
type Metric string

const (
	MetricIntelligibility    Metric = "intelligibility"
	MetricSpeakerConsistency Metric = "speaker_consistency"
	MetricSpeechQuality      Metric = "speech_quality"
)

// ReasonEvaluationFailed marks a sample rejected because a metric could not
// be measured at all, as opposed to measuring below threshold.
const ReasonEvaluationFailed = "evaluation_failed"

// EvaluationError wraps an evaluator failure with the metric it broke on.
type EvaluationError struct {
	Metric Metric
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.Metric, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Score holds one metric's outcome: either a measured value or the error
// that prevented measuring it.
type Score struct {
	Value float64
	Err   error
}

// Scores collects the three evaluator outcomes for one utterance.
type Scores struct {
	Intelligibility    Score
	SpeakerConsistency Score
	SpeechQuality      Score
}

// Verdict is the gate's decision. Reason and Metric are empty on accept.
type Verdict struct {
	Accepted bool
	Reason   string
	Metric   Metric
}

type Filter struct {
	cfg    config.QualityFilterConfig
	logger *slog.Logger
}

func New(cfg config.QualityFilterConfig, logger *slog.Logger) *Filter {
	return &Filter{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "quality-filter")),
	}
}

type axis struct {
	metric    Metric
	score     Score
	threshold float64
}

// Decide applies the conjunctive gate. Evaluation failures take priority
// over threshold misses; among threshold misses the first metric in the
// fixed order intelligibility, speaker consistency, speech quality names
// the verdict.
func (f *Filter) Decide(scores Scores) Verdict {
	axes := []axis{
		{MetricIntelligibility, scores.Intelligibility, f.cfg.IntelligibilityThreshold},
		{MetricSpeakerConsistency, scores.SpeakerConsistency, f.cfg.SpeakerConsistencyThreshold},
		{MetricSpeechQuality, scores.SpeechQuality, f.cfg.SpeechQualityThreshold},
	}

	for _, a := range axes {
		if a.score.Err != nil {
			f.logger.Warn("metric evaluation failed",
				slog.String("metric", string(a.metric)),
				slog.String("error", a.score.Err.Error()))
			return Verdict{Reason: ReasonEvaluationFailed, Metric: a.metric}
		}
	}
	for _, a := range axes {
		if a.score.Value < a.threshold {
			return Verdict{
				Reason: fmt.Sprintf("%s below threshold", a.metric),
				Metric: a.metric,
			}
		}
	}
	return Verdict{Accepted: true}
}
