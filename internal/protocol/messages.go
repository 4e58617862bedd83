package protocol

import "time"

// SampleEvent announces the fate of one synthesized sample on the bus so
// downstream consumers can track a run without polling the ledger.
type SampleEvent struct {
	RunID      string    `json:"run_id"`
	ScenarioID string    `json:"scenario_id"`
	VoiceID    string    `json:"voice_id,omitempty"`
	Text       string    `json:"text,omitempty"`
	Language   string    `json:"language,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Metric     string    `json:"metric,omitempty"`
	Path       string    `json:"path,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	Intelligibility    float64 `json:"intelligibility,omitempty"`
	SpeakerConsistency float64 `json:"speaker_consistency,omitempty"`
	SpeechQuality      float64 `json:"speech_quality,omitempty"`
}

// RunSummary is published once when a generation run finishes. The reason
// distribution is what threshold tuning works from, so it travels with the
// counts.
type RunSummary struct {
	RunID           string         `json:"run_id"`
	Requested       int            `json:"requested"`
	Generated       int            `json:"generated"`
	ContentRejected int            `json:"content_rejected"`
	SynthFailed     int            `json:"synth_failed"`
	EvalFailed      int            `json:"eval_failed"`
	QualityRejected int            `json:"quality_rejected"`
	PersistFailed   int            `json:"persist_failed"`
	Accepted        int            `json:"accepted"`
	RejectReasons   map[string]int `json:"reject_reasons,omitempty"`
	Started         time.Time      `json:"started"`
	Finished        time.Time      `json:"finished"`
}

const (
	SubjectSampleAccepted = "forge.sample.accepted"
	SubjectSampleRejected = "forge.sample.rejected"
	SubjectSampleFailed   = "forge.sample.failed"
	SubjectRunSummary     = "forge.run.summary"
)
