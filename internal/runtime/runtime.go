// Package runtime wires the configured components into a running voxforge
// process: telemetry, the optional event bus, the verdict ledger, and the
// generation pipeline itself, plus health endpoints for supervisors.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ambiware-labs/voxforge/internal/asr"
	"github.com/ambiware-labs/voxforge/internal/bus"
	"github.com/ambiware-labs/voxforge/internal/config"
	"github.com/ambiware-labs/voxforge/internal/contentfilter"
	"github.com/ambiware-labs/voxforge/internal/ledger"
	"github.com/ambiware-labs/voxforge/internal/mos"
	"github.com/ambiware-labs/voxforge/internal/natsserver"
	"github.com/ambiware-labs/voxforge/internal/pipeline"
	"github.com/ambiware-labs/voxforge/internal/qualityfilter"
	"github.com/ambiware-labs/voxforge/internal/scenario"
	"github.com/ambiware-labs/voxforge/internal/sink"
	"github.com/ambiware-labs/voxforge/internal/speaker"
	"github.com/ambiware-labs/voxforge/internal/synth"
	"github.com/ambiware-labs/voxforge/internal/voicebank"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	events      *bus.Client
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up observability and the bus, runs one generation run to
// completion, and tears everything down. Cancelling ctx stops the run early;
// samples already accepted stay in the output dir.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	var embedded *natsserver.EmbeddedServer
	var events *bus.Client
	if r.cfg.Bus.Enabled {
		embedded, err = natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		events, err = bus.Connect(ctx, r.cfg.Bus, r.logger)
		if err != nil {
			embedded.Shutdown()
			return fmt.Errorf("connect event bus: %w", err)
		}
		r.events = events
	}
	defer func() {
		events.Close()
		embedded.Shutdown()
	}()

	led, err := ledger.Open(ctx, r.cfg.Ledger, r.logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	pipe, err := r.buildPipeline(ctx, led, events)
	if err != nil {
		return err
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	summary, runErr := pipe.Run(ctx, r.cfg.Pipeline.ScenarioCount)
	r.logger.Info("generation run complete",
		slog.Int("requested", summary.Requested),
		slog.Int("accepted", summary.Accepted),
		slog.Int("content_rejected", summary.ContentRejected),
		slog.Int("quality_rejected", summary.QualityRejected),
		slog.Int("synth_failed", summary.SynthFailed),
		slog.Int("eval_failed", summary.EvalFailed),
		slog.Int("persist_failed", summary.PersistFailed),
		slog.Any("reject_reasons", summary.RejectReasons))

	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return runErr
}

func (r *Runtime) buildPipeline(ctx context.Context, led *ledger.Ledger, events *bus.Client) (*pipeline.Pipeline, error) {
	completer, err := scenario.NewCompleterFromConfig(r.cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("build completer: %w", err)
	}
	generator := scenario.NewGenerator(r.cfg.LLM, completer, r.logger)

	var judge contentfilter.Judge
	if r.cfg.LLM.Mode == "mock" {
		judge = contentfilter.NewMockJudge(contentfilter.Score{Consistency: 0.9, Coherence: 0.9, Naturalness: 0.9})
	} else {
		judge = contentfilter.NewLLMJudge(completer, r.cfg.LLM.Temperature, r.cfg.LLM.FastMode)
	}
	content := contentfilter.New(r.cfg.ContentFilter, judge, r.logger)

	voices, err := voicebank.Open(r.cfg.VoiceBank)
	if err != nil {
		return nil, fmt.Errorf("open voice bank: %w", err)
	}

	synthesizer, err := synth.New(ctx, r.cfg.TTS, r.logger)
	if err != nil {
		return nil, fmt.Errorf("build synthesizer: %w", err)
	}
	asrEval, err := asr.New(ctx, r.cfg.ASR, r.logger)
	if err != nil {
		return nil, fmt.Errorf("build asr evaluator: %w", err)
	}
	mosEval, err := mos.New(ctx, r.cfg.MOS, r.logger)
	if err != nil {
		return nil, fmt.Errorf("build mos evaluator: %w", err)
	}
	spkEval, err := speaker.New(ctx, r.cfg.Speaker, r.logger)
	if err != nil {
		return nil, fmt.Errorf("build speaker evaluator: %w", err)
	}

	snk, err := sink.New(r.cfg.Pipeline.OutputDir, r.logger)
	if err != nil {
		return nil, fmt.Errorf("build sink: %w", err)
	}

	return pipeline.New(r.cfg.Pipeline, pipeline.Deps{
		Generator:   generator,
		Content:     content,
		Synthesizer: synthesizer,
		Voices:      voices,
		ASR:         asrEval,
		MOS:         mosEval,
		Speaker:     spkEval,
		Gate:        qualityfilter.New(r.cfg.QualityFilter, r.logger),
		Sink:        snk,
		Ledger:      led,
		Bus:         events,
	}, r.logger), nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady requires the bus connection to be up when one is configured;
// a nil client means events are disabled and readiness ignores them.
func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.events == nil || r.events.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
