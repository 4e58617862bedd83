package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTS.TargetSampleRate != 22050 {
		t.Fatalf("expected default target sample rate, got %d", cfg.TTS.TargetSampleRate)
	}
	if cfg.MOS.BatchSize != 32 {
		t.Fatalf("expected default mos batch size 32, got %d", cfg.MOS.BatchSize)
	}
	if cfg.ContentFilter.ConsistencyThreshold != 0.85 {
		t.Fatalf("expected default consistency threshold 0.85, got %v", cfg.ContentFilter.ConsistencyThreshold)
	}
	if cfg.QualityFilter.IntelligibilityThreshold != 0.8 {
		t.Fatalf("expected default intelligibility threshold 0.8, got %v", cfg.QualityFilter.IntelligibilityThreshold)
	}
	if cfg.Speaker.SimilarityThreshold != 0.94 {
		t.Fatalf("expected advisory speaker threshold 0.94, got %v", cfg.Speaker.SimilarityThreshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXFORGE_LLM_MODE", "ollama")
	t.Setenv("VOXFORGE_LLM_ENDPOINT", "http://gpu-box:11434")
	t.Setenv("VOXFORGE_LLM_FAST_MODE", "true")
	t.Setenv("VOXFORGE_TTS_WORKERS", "4")
	t.Setenv("VOXFORGE_TTS_DEVICES", "cuda:0, cuda:1")
	t.Setenv("VOXFORGE_TTS_LAZY_LOAD", "false")
	t.Setenv("VOXFORGE_ASR_INPUT_SAMPLE_RATE", "8000")
	t.Setenv("VOXFORGE_MOS_BATCH_SIZE", "16")
	t.Setenv("VOXFORGE_QUALITY_SPEECH_THRESHOLD", "0.75")
	t.Setenv("VOXFORGE_PIPELINE_OUTPUT_DIR", "/tmp/out")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.Mode != "ollama" || cfg.LLM.Endpoint != "http://gpu-box:11434" {
		t.Fatalf("expected llm overrides, got %+v", cfg.LLM)
	}
	if !cfg.LLM.FastMode {
		t.Fatal("expected fast_mode override true")
	}
	if cfg.TTS.Workers != 4 {
		t.Fatalf("expected 4 tts workers, got %d", cfg.TTS.Workers)
	}
	if len(cfg.TTS.Devices) != 2 || cfg.TTS.Devices[1] != "cuda:1" {
		t.Fatalf("expected two devices, got %v", cfg.TTS.Devices)
	}
	if cfg.TTS.LazyLoad {
		t.Fatal("expected lazy_load override false")
	}
	if cfg.ASR.InputSampleRate != 8000 {
		t.Fatalf("expected asr sample rate override, got %d", cfg.ASR.InputSampleRate)
	}
	if cfg.MOS.BatchSize != 16 {
		t.Fatalf("expected mos batch size override, got %d", cfg.MOS.BatchSize)
	}
	if cfg.QualityFilter.SpeechQualityThreshold != 0.75 {
		t.Fatalf("expected speech quality threshold override, got %v", cfg.QualityFilter.SpeechQualityThreshold)
	}
	if cfg.Pipeline.OutputDir != "/tmp/out" {
		t.Fatalf("expected output dir override, got %s", cfg.Pipeline.OutputDir)
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	t.Setenv("VOXFORGE_QUALITY_SPEAKER_THRESHOLD", "1.5")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for threshold > 1")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("VOXFORGE_TTS_IN_USE", "espeak")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown tts backend")
	}
}
