package contentfilter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ambiware-labs/voxforge/internal/scenario"
)

const judgeSystemPrompt = "You grade spoken-language scripts. Reply with a " +
	`single JSON object {"consistency":x,"coherence":y,"naturalness":z} ` +
	"where each value is between 0 and 1. No other text."

// llmJudge scores text through the same completion backend the generator
// uses, asking for a JSON triple and parsing it out of the reply.
type llmJudge struct {
	completer   scenario.Completer
	temperature float64
	fast        bool
}

func NewLLMJudge(completer scenario.Completer, temperature float64, fast bool) Judge {
	return &llmJudge{completer: completer, temperature: temperature, fast: fast}
}

func (j *llmJudge) Judge(ctx context.Context, text string) (Score, error) {
	reply, err := j.completer.Complete(ctx, scenario.Request{
		Prompt:      "Grade this script:\n\n" + text,
		System:      judgeSystemPrompt,
		MaxTokens:   128,
		Temperature: j.temperature,
		Fast:        j.fast,
	})
	if err != nil {
		return Score{}, err
	}
	return parseScore(reply)
}

// parseScore tolerates judges that wrap the JSON object in prose.
func parseScore(reply string) (Score, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Score{}, fmt.Errorf("no JSON object in judge reply %q", reply)
	}
	var score Score
	if err := json.Unmarshal([]byte(reply[start:end+1]), &score); err != nil {
		return Score{}, fmt.Errorf("decode judge reply: %w", err)
	}
	for name, v := range map[string]float64{
		"consistency": score.Consistency,
		"coherence":   score.Coherence,
		"naturalness": score.Naturalness,
	} {
		if v < 0 || v > 1 {
			return Score{}, fmt.Errorf("judge %s score %v out of range", name, v)
		}
	}
	return score, nil
}

type mockJudge struct {
	score Score
}

// NewMockJudge returns a judge that always reports the given score.
func NewMockJudge(score Score) Judge { return &mockJudge{score: score} }

func (m *mockJudge) Judge(_ context.Context, _ string) (Score, error) {
	return m.score, nil
}
