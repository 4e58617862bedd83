package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func sinePCM(rate int, freq float64, samples int) []byte {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func TestWavRoundTrip(t *testing.T) {
	pcm := sinePCM(16000, 440, 1600)
	path := filepath.Join(t.TempDir(), "tone.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WritePCMToWav(file, pcm, 16000); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	file.Close()

	got, rate, err := ReadWavPCM(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if rate != 16000 {
		t.Fatalf("expected rate 16000, got %d", rate)
	}
	if len(got) != len(pcm) {
		t.Fatalf("expected %d bytes, got %d", len(pcm), len(got))
	}
	for i := range pcm {
		if pcm[i] != got[i] {
			t.Fatalf("sample mismatch at byte %d", i)
		}
	}
}

func TestWritePCMRejectsUnaligned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer file.Close()
	if err := WritePCMToWav(file, []byte{0x01}, 16000); err == nil {
		t.Fatal("expected error for odd-length pcm")
	}
}

func TestResampleLength(t *testing.T) {
	pcm := sinePCM(22050, 440, 22050)
	out, err := Resample(pcm, 22050, 16000)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if len(out) != 16000*2 {
		t.Fatalf("expected 16000 samples, got %d", len(out)/2)
	}
}

func TestResampleIdentity(t *testing.T) {
	pcm := sinePCM(16000, 440, 160)
	out, err := Resample(pcm, 16000, 16000)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if len(out) != len(pcm) {
		t.Fatalf("expected identity resample, got %d bytes", len(out))
	}
}

func TestResampleEmpty(t *testing.T) {
	out, err := Resample(nil, 22050, 16000)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(out))
	}
}
