// Package pipeline drives a generation run: scenario text from the LLM,
// a content gate, speech synthesis, three independent quality evaluators,
// and a final conjunctive gate deciding which samples land in the output
// directory.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ambiware-labs/voxforge/internal/bus"
	"github.com/ambiware-labs/voxforge/internal/config"
	"github.com/ambiware-labs/voxforge/internal/contentfilter"
	"github.com/ambiware-labs/voxforge/internal/ledger"
	"github.com/ambiware-labs/voxforge/internal/mos"
	"github.com/ambiware-labs/voxforge/internal/protocol"
	"github.com/ambiware-labs/voxforge/internal/qualityfilter"
	"github.com/ambiware-labs/voxforge/internal/scenario"
	"github.com/ambiware-labs/voxforge/internal/sink"
	"github.com/ambiware-labs/voxforge/internal/synth"
	"github.com/ambiware-labs/voxforge/internal/voicebank"
)

// Summary tallies how one run ended. A sample is counted exactly once: the
// first stage that drops it claims it.
type Summary struct {
	Requested       int
	Generated       int
	ContentRejected int
	SynthFailed     int
	EvalFailed      int
	QualityRejected int
	PersistFailed   int
	Accepted        int
	RejectReasons   map[string]int
}

// Generator produces scenario text from a seed.
type Generator interface {
	Generate(ctx context.Context, seed scenario.Seed) (*scenario.Scenario, error)
}

// ContentGate scores scenario text before any GPU work is spent on it.
type ContentGate interface {
	Score(ctx context.Context, sc *scenario.Scenario) (contentfilter.Score, error)
	Accept(score contentfilter.Score) (bool, string)
}

// Synthesizer renders a scenario into a temp WAV artifact.
type Synthesizer interface {
	Synthesize(ctx context.Context, sc *scenario.Scenario, voice voicebank.Voice) (*synth.Utterance, error)
}

// IntelligibilityScorer measures how recognizable the speech is.
type IntelligibilityScorer interface {
	Evaluate(ctx context.Context, utt *synth.Utterance) (float64, error)
}

// SimilarityScorer measures how close the voice is to its reference clip.
type SimilarityScorer interface {
	Evaluate(ctx context.Context, utt *synth.Utterance, referenceClip string) (float64, error)
}

type Pipeline struct {
	cfg config.PipelineConfig

	generator   Generator
	content     ContentGate
	synthesizer Synthesizer
	voices      *voicebank.Bank
	asrEval     IntelligibilityScorer
	mosBatcher  *mos.Batcher
	speakerEval SimilarityScorer
	gate        *qualityfilter.Filter
	sink        *sink.Sink
	ledger      *ledger.Ledger
	bus         *bus.Client

	logger  *slog.Logger
	metrics pipelineMetrics

	mu      sync.Mutex
	summary Summary
}

// Deps collects the pipeline's collaborators. Bus may be nil when event
// publication is disabled.
type Deps struct {
	Generator   Generator
	Content     ContentGate
	Synthesizer Synthesizer
	Voices      *voicebank.Bank
	MOS         mos.BatchScorer
	ASR         IntelligibilityScorer
	Speaker     SimilarityScorer
	Gate        *qualityfilter.Filter
	Sink        *sink.Sink
	Ledger      *ledger.Ledger
	Bus         *bus.Client
}

func New(cfg config.PipelineConfig, deps Deps, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		cfg:         cfg,
		generator:   deps.Generator,
		content:     deps.Content,
		synthesizer: deps.Synthesizer,
		voices:      deps.Voices,
		asrEval:     deps.ASR,
		mosBatcher:  mos.NewBatcher(deps.MOS),
		speakerEval: deps.Speaker,
		gate:        deps.Gate,
		sink:        deps.Sink,
		ledger:      deps.Ledger,
		bus:         deps.Bus,
		logger:      logger.With(slog.String("component", "pipeline")),
	}
	if err := p.initMetrics(); err != nil {
		p.logger.Warn("failed to initialize pipeline metrics", slog.String("error", err.Error()))
	}
	return p
}

// pending carries a synthesized sample from the evaluator fan-out to the
// final gate. The MOS score arrives later through the batcher channel.
type pending struct {
	utt     *synth.Utterance
	voice   voicebank.Voice
	asr     qualityfilter.Score
	speaker qualityfilter.Score
	mosCh   <-chan mos.Result
}

// Run generates n samples' worth of scenarios and pushes each through the
// full gauntlet. Individual sample failures are counted, never fatal.
func (p *Pipeline) Run(ctx context.Context, n int) (Summary, error) {
	runID := uuid.NewString()
	started := time.Now().UTC()
	p.mu.Lock()
	p.summary = Summary{Requested: n, RejectReasons: make(map[string]int)}
	p.mu.Unlock()

	if err := p.ledger.BeginRun(ctx, runID, p.cfg.Language); err != nil {
		return Summary{}, err
	}
	p.logger.Info("run started", slog.String("run_id", runID), slog.Int("requested", n))

	workers := p.cfg.Generators
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan int)
	results := make(chan *pending, n)

	var finalizeWG sync.WaitGroup
	finalizeWG.Add(1)
	go func() {
		defer finalizeWG.Done()
		for sample := range results {
			p.finalize(ctx, runID, sample)
		}
	}()

	var workerWG sync.WaitGroup
	for w := 0; w < workers; w++ {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			for i := range jobs {
				if sample := p.produce(ctx, runID, i); sample != nil {
					results <- sample
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			i = n
		}
	}
	close(jobs)
	workerWG.Wait()

	// No further submissions can arrive; score the short remainder so the
	// finalizer can drain.
	p.mosBatcher.Flush(ctx)
	close(results)
	finalizeWG.Wait()

	if err := p.ledger.FinishRun(ctx, runID); err != nil {
		p.logger.Warn("finish run", slog.String("error", err.Error()))
	}

	p.mu.Lock()
	summary := p.summary
	p.mu.Unlock()

	p.publishSummary(runID, summary, started)
	p.logger.Info("run finished",
		slog.String("run_id", runID),
		slog.Int("accepted", summary.Accepted),
		slog.Int("content_rejected", summary.ContentRejected),
		slog.Int("quality_rejected", summary.QualityRejected),
		slog.Int("synth_failed", summary.SynthFailed),
		slog.Int("eval_failed", summary.EvalFailed),
		slog.Int("persist_failed", summary.PersistFailed),
		slog.Any("reject_reasons", summary.RejectReasons))
	return summary, ctx.Err()
}

// produce runs one sample up to the evaluator fan-out. Returns nil when the
// sample was dropped before evaluation.
func (p *Pipeline) produce(ctx context.Context, runID string, i int) *pending {
	seed := p.seedFor(i)
	sc, err := p.generator.Generate(ctx, seed)
	if err != nil {
		p.logger.Warn("scenario generation failed",
			slog.String("topic", seed.Topic),
			slog.String("error", err.Error()))
		return nil
	}
	p.count(func(s *Summary) { s.Generated++ })

	score, err := p.content.Score(ctx, sc)
	if err != nil {
		p.rejectContent(ctx, runID, sc, "content_judge_failed")
		return nil
	}
	if ok, reason := p.content.Accept(score); !ok {
		p.rejectContent(ctx, runID, sc, "content_"+reason)
		return nil
	}

	voice := p.voices.Pick(i)
	utt, err := p.synthesizer.Synthesize(ctx, sc, voice)
	if err != nil {
		p.logger.Warn("synthesis failed",
			slog.String("scenario_id", sc.ID),
			slog.String("error", err.Error()))
		p.count(func(s *Summary) {
			s.SynthFailed++
			s.RejectReasons["synthesis_failed"]++
		})
		p.record(ctx, ledger.Verdict{
			RunID: runID, ScenarioID: sc.ID, VoiceID: voice.ID,
			Text: sc.Text, Language: sc.Language,
			Reason: "synthesis_failed",
		})
		p.publishSample(protocol.SubjectSampleFailed, protocol.SampleEvent{
			RunID: runID, ScenarioID: sc.ID, VoiceID: voice.ID,
			Reason: "synthesis_failed", Timestamp: time.Now().UTC(),
		})
		return nil
	}

	sample := &pending{utt: utt, voice: voice}
	mosCh := p.mosBatcher.Submit(ctx, utt)
	sample.mosCh = mosCh

	var evalWG sync.WaitGroup
	evalWG.Add(2)
	go func() {
		defer evalWG.Done()
		v, err := p.asrEval.Evaluate(ctx, utt)
		if err != nil {
			sample.asr = qualityfilter.Score{Err: &qualityfilter.EvaluationError{Metric: qualityfilter.MetricIntelligibility, Err: err}}
			return
		}
		sample.asr = qualityfilter.Score{Value: v}
	}()
	go func() {
		defer evalWG.Done()
		v, err := p.speakerEval.Evaluate(ctx, utt, voice.ClipPath)
		if err != nil {
			sample.speaker = qualityfilter.Score{Err: &qualityfilter.EvaluationError{Metric: qualityfilter.MetricSpeakerConsistency, Err: err}}
			return
		}
		sample.speaker = qualityfilter.Score{Value: v}
	}()
	evalWG.Wait()
	return sample
}

// finalize waits for the batched score, applies the gate, and either
// persists the sample or removes its artifact.
func (p *Pipeline) finalize(ctx context.Context, runID string, sample *pending) {
	sc := sample.utt.Scenario

	scores := qualityfilter.Scores{
		Intelligibility:    sample.asr,
		SpeakerConsistency: sample.speaker,
	}
	res := <-sample.mosCh
	if res.Err != nil {
		scores.SpeechQuality = qualityfilter.Score{Err: &qualityfilter.EvaluationError{Metric: qualityfilter.MetricSpeechQuality, Err: res.Err}}
	} else {
		// Predictors score MOS on a 1..5 scale; the gate thresholds are
		// normalized to [0,1].
		scores.SpeechQuality = qualityfilter.Score{Value: normalizeMOS(res.Score)}
	}

	verdict := p.gate.Decide(scores)
	event := protocol.SampleEvent{
		RunID:              runID,
		ScenarioID:         sc.ID,
		VoiceID:            sample.voice.ID,
		Text:               sc.Text,
		Language:           sc.Language,
		Timestamp:          time.Now().UTC(),
		Intelligibility:    scores.Intelligibility.Value,
		SpeakerConsistency: scores.SpeakerConsistency.Value,
		SpeechQuality:      scores.SpeechQuality.Value,
	}
	record := ledger.Verdict{
		RunID:              runID,
		ScenarioID:         sc.ID,
		VoiceID:            sample.voice.ID,
		Text:               sc.Text,
		Language:           sc.Language,
		Accepted:           verdict.Accepted,
		Reason:             verdict.Reason,
		Metric:             string(verdict.Metric),
		Intelligibility:    scores.Intelligibility.Value,
		SpeakerConsistency: scores.SpeakerConsistency.Value,
		SpeechQuality:      scores.SpeechQuality.Value,
	}

	if verdict.Accepted {
		path, err := p.sink.Persist(sample.utt,
			scores.Intelligibility.Value,
			scores.SpeakerConsistency.Value,
			scores.SpeechQuality.Value)
		if err != nil {
			p.logger.Warn("persist failed",
				slog.String("scenario_id", sc.ID),
				slog.String("error", err.Error()))
			if derr := sample.utt.Discard(); derr != nil {
				p.logger.Warn("discard failed", slog.String("error", derr.Error()))
			}
			p.count(func(s *Summary) {
				s.PersistFailed++
				s.RejectReasons["persist_failed"]++
			})
			record.Accepted = false
			record.Reason = "persist_failed"
			p.record(ctx, record)
			event.Reason = "persist_failed"
			p.publishSample(protocol.SubjectSampleFailed, event)
			return
		}
		record.ArtifactPath = path
		event.Path = path
		p.count(func(s *Summary) { s.Accepted++ })
		p.metrics.accepted.Add(ctx, 1)
		p.record(ctx, record)
		p.publishSample(protocol.SubjectSampleAccepted, event)
		return
	}

	if err := sample.utt.Discard(); err != nil {
		p.logger.Warn("discard failed",
			slog.String("scenario_id", sc.ID),
			slog.String("error", err.Error()))
	}
	event.Reason = verdict.Reason
	event.Metric = string(verdict.Metric)
	p.count(func(s *Summary) {
		if verdict.Reason == qualityfilter.ReasonEvaluationFailed {
			s.EvalFailed++
		} else {
			s.QualityRejected++
		}
		s.RejectReasons[verdict.Reason]++
	})
	p.metrics.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", verdict.Reason)))
	p.record(ctx, record)
	p.publishSample(protocol.SubjectSampleRejected, event)
}

func (p *Pipeline) rejectContent(ctx context.Context, runID string, sc *scenario.Scenario, reason string) {
	p.count(func(s *Summary) {
		s.ContentRejected++
		s.RejectReasons[reason]++
	})
	p.metrics.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	p.record(ctx, ledger.Verdict{
		RunID: runID, ScenarioID: sc.ID,
		Text: sc.Text, Language: sc.Language,
		Reason: reason,
	})
	p.publishSample(protocol.SubjectSampleRejected, protocol.SampleEvent{
		RunID: runID, ScenarioID: sc.ID,
		Text: sc.Text, Language: sc.Language,
		Reason: reason, Timestamp: time.Now().UTC(),
	})
}

func (p *Pipeline) count(fn func(*Summary)) {
	p.mu.Lock()
	fn(&p.summary)
	p.mu.Unlock()
}

func (p *Pipeline) record(ctx context.Context, v ledger.Verdict) {
	if err := p.ledger.Record(ctx, v); err != nil {
		p.logger.Warn("ledger record failed",
			slog.String("scenario_id", v.ScenarioID),
			slog.String("error", err.Error()))
	}
}

func (p *Pipeline) publishSample(subject string, event protocol.SampleEvent) {
	if p.bus == nil {
		return
	}
	if err := p.bus.PublishJSON(subject, event); err != nil {
		p.logger.Warn("event publish failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

func buildRunSummary(runID string, s Summary, started, finished time.Time) protocol.RunSummary {
	reasons := make(map[string]int, len(s.RejectReasons))
	for reason, n := range s.RejectReasons {
		reasons[reason] = n
	}
	return protocol.RunSummary{
		RunID:           runID,
		Requested:       s.Requested,
		Generated:       s.Generated,
		ContentRejected: s.ContentRejected,
		SynthFailed:     s.SynthFailed,
		EvalFailed:      s.EvalFailed,
		QualityRejected: s.QualityRejected,
		PersistFailed:   s.PersistFailed,
		Accepted:        s.Accepted,
		RejectReasons:   reasons,
		Started:         started,
		Finished:        finished,
	}
}

func (p *Pipeline) publishSummary(runID string, s Summary, started time.Time) {
	if p.bus == nil {
		return
	}
	err := p.bus.PublishJSON(protocol.SubjectRunSummary, buildRunSummary(runID, s, started, time.Now().UTC()))
	if err != nil {
		p.logger.Warn("summary publish failed", slog.String("error", err.Error()))
	}
}

// normalizeMOS maps the predictor's 1..5 opinion scale onto [0,1].
func normalizeMOS(score float64) float64 {
	n := (score - 1) / 4
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

type pipelineMetrics struct {
	accepted metric.Int64Counter
	rejected metric.Int64Counter
}

func (p *Pipeline) initMetrics() error {
	meter := otel.Meter("github.com/ambiware-labs/voxforge/pipeline")
	var err error
	if p.metrics.accepted, err = meter.Int64Counter("voxforge.samples.accepted",
		metric.WithDescription("Samples that passed every quality gate")); err != nil {
		return err
	}
	if p.metrics.rejected, err = meter.Int64Counter("voxforge.samples.rejected",
		metric.WithDescription("Samples dropped by a gate, labeled by reason")); err != nil {
		return err
	}
	return nil
}
