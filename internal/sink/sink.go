// Package sink persists accepted samples: the WAV artifact moves from the
// synthesis temp dir into the output dir and a JSON bundle records the
// transcript and evaluator scores alongside it.
package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ambiware-labs/voxforge/internal/synth"
)

// Bundle is the metadata file written next to each accepted WAV.
type Bundle struct {
	ScenarioID string    `json:"scenario_id"`
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	VoiceID    string    `json:"voice_id"`
	SampleRate int       `json:"sample_rate"`
	AudioFile  string    `json:"audio_file"`
	Created    time.Time `json:"created"`

	Intelligibility    float64 `json:"intelligibility"`
	SpeakerConsistency float64 `json:"speaker_consistency"`
	SpeechQuality      float64 `json:"speech_quality"`
}

type Sink struct {
	dir    string
	logger *slog.Logger
}

func New(outputDir string, logger *slog.Logger) (*Sink, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Sink{
		dir:    outputDir,
		logger: logger.With(slog.String("component", "sink")),
	}, nil
}

// Persist writes the utterance's bundle and moves the WAV into the output
// dir. The bundle goes first: the move is the acceptance, so an accepted WAV
// is never in the output dir without its scores. On error the output dir is
// left without either file and the utterance still owns its temp artifact
// unless the move itself failed, in which case the temp file is removed
// here.
func (s *Sink) Persist(utt *synth.Utterance, intelligibility, speakerConsistency, speechQuality float64) (string, error) {
	wavName := fmt.Sprintf("utt_%s.wav", utt.Scenario.ID)
	wavPath := filepath.Join(s.dir, wavName)

	bundle := Bundle{
		ScenarioID:         utt.Scenario.ID,
		Text:               utt.Scenario.Text,
		Language:           utt.Scenario.Language,
		VoiceID:            utt.VoiceID,
		SampleRate:         utt.SampleRate,
		AudioFile:          wavName,
		Created:            time.Now().UTC(),
		Intelligibility:    intelligibility,
		SpeakerConsistency: speakerConsistency,
		SpeechQuality:      speechQuality,
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode bundle %s: %w", utt.Scenario.ID, err)
	}
	jsonPath := filepath.Join(s.dir, fmt.Sprintf("utt_%s.json", utt.Scenario.ID))
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write bundle %s: %w", utt.Scenario.ID, err)
	}

	if err := utt.Finalize(wavPath); err != nil {
		// A failed rename consumed the utterance's lifecycle, so the temp
		// artifact is cleaned up here rather than by the caller's Discard.
		if rmErr := os.Remove(jsonPath); rmErr != nil {
			s.logger.Warn("bundle cleanup failed",
				slog.String("scenario_id", utt.Scenario.ID),
				slog.String("error", rmErr.Error()))
		}
		if rmErr := os.Remove(utt.Path()); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("artifact cleanup failed",
				slog.String("scenario_id", utt.Scenario.ID),
				slog.String("error", rmErr.Error()))
		}
		return "", fmt.Errorf("finalize %s: %w", utt.Scenario.ID, err)
	}

	s.logger.Debug("sample persisted",
		slog.String("scenario_id", utt.Scenario.ID),
		slog.String("path", wavPath))
	return wavPath, nil
}

func (s *Sink) Dir() string { return s.dir }
