package synth

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"time"
)

const mockEngineRate = 24000

// mockEngine renders a deterministic tone derived from the input text, at a
// rate that differs from the usual target so resampling gets exercised.
type mockEngine struct {
	device string
}

func NewMockEngine(device string) Engine { return &mockEngine{device: device} }

func (m *mockEngine) Render(ctx context.Context, text, voiceClip string) ([]byte, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}

	h := fnv.New32a()
	h.Write([]byte(text))
	h.Write([]byte(voiceClip))
	freq := 200 + float64(h.Sum32()%600)

	samples := mockEngineRate / 2 // half a second
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*freq*float64(i)/float64(mockEngineRate)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm, mockEngineRate, nil
}
