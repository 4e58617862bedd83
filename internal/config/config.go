package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // mock, ollama, exec
	Endpoint    string  `yaml:"endpoint"`
	Command     string  `yaml:"command"`
	ModelFast   string  `yaml:"model_fast"`
	ModelBal    string  `yaml:"model_balanced"`
	FastMode    bool    `yaml:"fast_mode"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type ContentFilterConfig struct {
	ConsistencyThreshold float64 `yaml:"consistency_threshold"`
	CoherenceThreshold   float64 `yaml:"coherence_threshold"`
	NaturalnessThreshold float64 `yaml:"naturalness_threshold"`
}

type VoiceBankConfig struct {
	Directory    string `yaml:"directory"`
	DefaultVoice string `yaml:"default_voice"`
}

type TTSConfig struct {
	InUse            string   `yaml:"tts_in_use"` // mock, cosyvoice
	Command          string   `yaml:"command"`
	Workers          int      `yaml:"workers"`
	Devices          []string `yaml:"devices"`
	LazyLoad         bool     `yaml:"lazy_load"`
	TargetSampleRate int      `yaml:"target_sample_rate"`
	TempDir          string   `yaml:"temp_dir"`
}

type ASRConfig struct {
	Mode            string   `yaml:"mode"` // mock, exec
	Command         string   `yaml:"command"`
	Workers         int      `yaml:"workers"`
	Devices         []string `yaml:"devices"`
	LazyLoad        bool     `yaml:"lazy_load"`
	InputSampleRate int      `yaml:"input_sample_rate"`
	Language        string   `yaml:"language"`
}

type MOSConfig struct {
	Mode      string   `yaml:"mode"` // mock, exec
	Command   string   `yaml:"command"`
	Workers   int      `yaml:"workers"`
	Devices   []string `yaml:"devices"`
	LazyLoad  bool     `yaml:"lazy_load"`
	BatchSize int      `yaml:"batch_size"`
}

type SpeakerConfig struct {
	Mode     string   `yaml:"mode"` // mock, exec
	Command  string   `yaml:"command"`
	Workers  int      `yaml:"workers"`
	Devices  []string `yaml:"devices"`
	LazyLoad bool     `yaml:"lazy_load"`
	// Advisory only; the authoritative accept threshold lives in quality_filter.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type QualityFilterConfig struct {
	IntelligibilityThreshold    float64 `yaml:"intelligibility_threshold"`
	SpeakerConsistencyThreshold float64 `yaml:"speaker_consistency_threshold"`
	SpeechQualityThreshold      float64 `yaml:"speech_quality_threshold"`
}

type LedgerConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type PipelineConfig struct {
	ScenarioCount int    `yaml:"scenario_count"`
	Language      string `yaml:"language"`
	OutputDir     string `yaml:"output_dir"`
	Generators    int    `yaml:"generators"`
}

type Config struct {
	RuntimeName   string              `yaml:"runtime_name"`
	Environment   string              `yaml:"environment"`
	HTTP          HTTPConfig          `yaml:"http"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Bus           BusConfig           `yaml:"bus"`
	LLM           LLMConfig           `yaml:"llm"`
	ContentFilter ContentFilterConfig `yaml:"content_filter"`
	VoiceBank     VoiceBankConfig     `yaml:"voice_bank"`
	TTS           TTSConfig           `yaml:"tts"`
	ASR           ASRConfig           `yaml:"asr"`
	MOS           MOSConfig           `yaml:"mos"`
	Speaker       SpeakerConfig       `yaml:"speaker"`
	QualityFilter QualityFilterConfig `yaml:"quality_filter"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxforge",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		LLM: LLMConfig{
			Mode:        "mock",
			Endpoint:    "http://localhost:11434",
			ModelFast:   "llama3.2:latest",
			ModelBal:    "llama3.2:latest",
			MaxTokens:   512,
			Temperature: 0.7,
		},
		ContentFilter: ContentFilterConfig{
			ConsistencyThreshold: 0.85,
			CoherenceThreshold:   0.85,
			NaturalnessThreshold: 0.85,
		},
		VoiceBank: VoiceBankConfig{
			Directory: "./voices",
		},
		TTS: TTSConfig{
			InUse:            "mock",
			Workers:          2,
			Devices:          []string{"cuda:0"},
			LazyLoad:         true,
			TargetSampleRate: 22050,
		},
		ASR: ASRConfig{
			Mode:            "mock",
			Workers:         2,
			Devices:         []string{"cuda:0"},
			LazyLoad:        true,
			InputSampleRate: 16000,
		},
		MOS: MOSConfig{
			Mode:      "mock",
			Workers:   1,
			Devices:   []string{"cuda:0"},
			LazyLoad:  true,
			BatchSize: 32,
		},
		Speaker: SpeakerConfig{
			Mode:                "mock",
			Workers:             1,
			Devices:             []string{"cuda:0"},
			LazyLoad:            true,
			SimilarityThreshold: 0.94,
		},
		QualityFilter: QualityFilterConfig{
			IntelligibilityThreshold:    0.8,
			SpeakerConsistencyThreshold: 0.9,
			SpeechQualityThreshold:      0.6,
		},
		Ledger: LedgerConfig{
			Path:          "./data/voxforge-ledger.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxRuns:       1000,
		},
		Pipeline: PipelineConfig{
			ScenarioCount: 100,
			Language:      "English",
			OutputDir:     "./output",
			Generators:    2,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOXFORGE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXFORGE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXFORGE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXFORGE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VOXFORGE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXFORGE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXFORGE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOXFORGE_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "VOXFORGE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOXFORGE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXFORGE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXFORGE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXFORGE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXFORGE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXFORGE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXFORGE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXFORGE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.LLM.Mode, "VOXFORGE_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "VOXFORGE_LLM_ENDPOINT")
	overrideString(&cfg.LLM.Command, "VOXFORGE_LLM_COMMAND")
	overrideString(&cfg.LLM.ModelFast, "VOXFORGE_LLM_MODEL_FAST")
	overrideString(&cfg.LLM.ModelBal, "VOXFORGE_LLM_MODEL_BALANCED")
	overrideBool(&cfg.LLM.FastMode, "VOXFORGE_LLM_FAST_MODE")
	overrideInt(&cfg.LLM.MaxTokens, "VOXFORGE_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "VOXFORGE_LLM_TEMPERATURE")
	overrideFloat(&cfg.ContentFilter.ConsistencyThreshold, "VOXFORGE_CONTENT_CONSISTENCY_THRESHOLD")
	overrideFloat(&cfg.ContentFilter.CoherenceThreshold, "VOXFORGE_CONTENT_COHERENCE_THRESHOLD")
	overrideFloat(&cfg.ContentFilter.NaturalnessThreshold, "VOXFORGE_CONTENT_NATURALNESS_THRESHOLD")
	overrideString(&cfg.VoiceBank.Directory, "VOXFORGE_VOICE_BANK_DIR")
	overrideString(&cfg.VoiceBank.DefaultVoice, "VOXFORGE_VOICE_BANK_DEFAULT")
	overrideString(&cfg.TTS.InUse, "VOXFORGE_TTS_IN_USE")
	overrideString(&cfg.TTS.Command, "VOXFORGE_TTS_COMMAND")
	overrideInt(&cfg.TTS.Workers, "VOXFORGE_TTS_WORKERS")
	overrideStringSlice(&cfg.TTS.Devices, "VOXFORGE_TTS_DEVICES")
	overrideBool(&cfg.TTS.LazyLoad, "VOXFORGE_TTS_LAZY_LOAD")
	overrideInt(&cfg.TTS.TargetSampleRate, "VOXFORGE_TTS_TARGET_SAMPLE_RATE")
	overrideString(&cfg.TTS.TempDir, "VOXFORGE_TTS_TEMP_DIR")
	overrideString(&cfg.ASR.Mode, "VOXFORGE_ASR_MODE")
	overrideString(&cfg.ASR.Command, "VOXFORGE_ASR_COMMAND")
	overrideInt(&cfg.ASR.Workers, "VOXFORGE_ASR_WORKERS")
	overrideStringSlice(&cfg.ASR.Devices, "VOXFORGE_ASR_DEVICES")
	overrideBool(&cfg.ASR.LazyLoad, "VOXFORGE_ASR_LAZY_LOAD")
	overrideInt(&cfg.ASR.InputSampleRate, "VOXFORGE_ASR_INPUT_SAMPLE_RATE")
	overrideString(&cfg.ASR.Language, "VOXFORGE_ASR_LANGUAGE")
	overrideString(&cfg.MOS.Mode, "VOXFORGE_MOS_MODE")
	overrideString(&cfg.MOS.Command, "VOXFORGE_MOS_COMMAND")
	overrideInt(&cfg.MOS.Workers, "VOXFORGE_MOS_WORKERS")
	overrideStringSlice(&cfg.MOS.Devices, "VOXFORGE_MOS_DEVICES")
	overrideBool(&cfg.MOS.LazyLoad, "VOXFORGE_MOS_LAZY_LOAD")
	overrideInt(&cfg.MOS.BatchSize, "VOXFORGE_MOS_BATCH_SIZE")
	overrideString(&cfg.Speaker.Mode, "VOXFORGE_SPEAKER_MODE")
	overrideString(&cfg.Speaker.Command, "VOXFORGE_SPEAKER_COMMAND")
	overrideInt(&cfg.Speaker.Workers, "VOXFORGE_SPEAKER_WORKERS")
	overrideStringSlice(&cfg.Speaker.Devices, "VOXFORGE_SPEAKER_DEVICES")
	overrideBool(&cfg.Speaker.LazyLoad, "VOXFORGE_SPEAKER_LAZY_LOAD")
	overrideFloat(&cfg.Speaker.SimilarityThreshold, "VOXFORGE_SPEAKER_SIMILARITY_THRESHOLD")
	overrideFloat(&cfg.QualityFilter.IntelligibilityThreshold, "VOXFORGE_QUALITY_INTELLIGIBILITY_THRESHOLD")
	overrideFloat(&cfg.QualityFilter.SpeakerConsistencyThreshold, "VOXFORGE_QUALITY_SPEAKER_THRESHOLD")
	overrideFloat(&cfg.QualityFilter.SpeechQualityThreshold, "VOXFORGE_QUALITY_SPEECH_THRESHOLD")
	overrideString(&cfg.Ledger.Path, "VOXFORGE_LEDGER_PATH")
	overrideString(&cfg.Ledger.RetentionMode, "VOXFORGE_LEDGER_RETENTION_MODE")
	overrideInt(&cfg.Ledger.RetentionDays, "VOXFORGE_LEDGER_RETENTION_DAYS")
	overrideInt(&cfg.Ledger.MaxRuns, "VOXFORGE_LEDGER_MAX_RUNS")
	overrideBool(&cfg.Ledger.VacuumOnStart, "VOXFORGE_LEDGER_VACUUM_ON_START")
	overrideInt(&cfg.Pipeline.ScenarioCount, "VOXFORGE_PIPELINE_SCENARIO_COUNT")
	overrideString(&cfg.Pipeline.Language, "VOXFORGE_PIPELINE_LANGUAGE")
	overrideString(&cfg.Pipeline.OutputDir, "VOXFORGE_PIPELINE_OUTPUT_DIR")
	overrideInt(&cfg.Pipeline.Generators, "VOXFORGE_PIPELINE_GENERATORS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func thresholdInRange(name string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%s must be within [0,1], got %v", name, value)
	}
	return nil
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.LLM.Mode {
	case "mock", "ollama", "exec":
	default:
		return errors.New("llm.mode must be one of mock|ollama|exec")
	}
	if cfg.LLM.Mode == "ollama" && cfg.LLM.Endpoint == "" {
		return errors.New("llm.endpoint must be set when mode=ollama")
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	if err := thresholdInRange("content_filter.consistency_threshold", cfg.ContentFilter.ConsistencyThreshold); err != nil {
		return err
	}
	if err := thresholdInRange("content_filter.coherence_threshold", cfg.ContentFilter.CoherenceThreshold); err != nil {
		return err
	}
	if err := thresholdInRange("content_filter.naturalness_threshold", cfg.ContentFilter.NaturalnessThreshold); err != nil {
		return err
	}
	if cfg.VoiceBank.Directory == "" {
		return errors.New("voice_bank.directory must not be empty")
	}
	switch cfg.TTS.InUse {
	case "mock", "cosyvoice":
	default:
		return errors.New("tts.tts_in_use must be one of mock|cosyvoice")
	}
	if cfg.TTS.InUse == "cosyvoice" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when tts_in_use=cosyvoice")
	}
	if cfg.TTS.Workers <= 0 {
		return errors.New("tts.workers must be >= 1")
	}
	if cfg.TTS.TargetSampleRate <= 0 {
		return errors.New("tts.target_sample_rate must be positive")
	}
	switch cfg.ASR.Mode {
	case "mock", "exec":
	default:
		return errors.New("asr.mode must be one of mock|exec")
	}
	if cfg.ASR.Mode == "exec" && cfg.ASR.Command == "" {
		return errors.New("asr.command must be set when mode=exec")
	}
	if cfg.ASR.Workers <= 0 {
		return errors.New("asr.workers must be >= 1")
	}
	if cfg.ASR.InputSampleRate <= 0 {
		return errors.New("asr.input_sample_rate must be positive")
	}
	switch cfg.MOS.Mode {
	case "mock", "exec":
	default:
		return errors.New("mos.mode must be one of mock|exec")
	}
	if cfg.MOS.Mode == "exec" && cfg.MOS.Command == "" {
		return errors.New("mos.command must be set when mode=exec")
	}
	if cfg.MOS.Workers <= 0 {
		return errors.New("mos.workers must be >= 1")
	}
	if cfg.MOS.BatchSize <= 0 {
		return errors.New("mos.batch_size must be >= 1")
	}
	switch cfg.Speaker.Mode {
	case "mock", "exec":
	default:
		return errors.New("speaker.mode must be one of mock|exec")
	}
	if cfg.Speaker.Mode == "exec" && cfg.Speaker.Command == "" {
		return errors.New("speaker.command must be set when mode=exec")
	}
	if cfg.Speaker.Workers <= 0 {
		return errors.New("speaker.workers must be >= 1")
	}
	if err := thresholdInRange("speaker.similarity_threshold", cfg.Speaker.SimilarityThreshold); err != nil {
		return err
	}
	if err := thresholdInRange("quality_filter.intelligibility_threshold", cfg.QualityFilter.IntelligibilityThreshold); err != nil {
		return err
	}
	if err := thresholdInRange("quality_filter.speaker_consistency_threshold", cfg.QualityFilter.SpeakerConsistencyThreshold); err != nil {
		return err
	}
	if err := thresholdInRange("quality_filter.speech_quality_threshold", cfg.QualityFilter.SpeechQualityThreshold); err != nil {
		return err
	}
	if cfg.Ledger.Path == "" {
		return errors.New("ledger.path must not be empty")
	}
	switch cfg.Ledger.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("ledger.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Ledger.RetentionDays < 0 {
		return errors.New("ledger.retention_days must be >= 0")
	}
	if cfg.Pipeline.ScenarioCount < 0 {
		return errors.New("pipeline.scenario_count must be >= 0")
	}
	if cfg.Pipeline.OutputDir == "" {
		return errors.New("pipeline.output_dir must not be empty")
	}
	if cfg.Pipeline.Generators <= 0 {
		return errors.New("pipeline.generators must be >= 1")
	}
	return nil
}
