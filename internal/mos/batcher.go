package mos

import (
	"context"
	"sync"

	"github.com/ambiware-labs/voxforge/internal/synth"
)

// Result is delivered once per submitted utterance.
type Result struct {
	Score float64
	Err   error
}

type pending struct {
	utt  *synth.Utterance
	done chan Result
}

// BatchScorer is the evaluator surface the batcher needs.
type BatchScorer interface {
	EvaluateBatch(ctx context.Context, utts []*synth.Utterance) ([]float64, error)
	BatchSize() int
}

// Batcher accumulates utterances for the evaluator and flushes a full batch
// as soon as batch_size submissions are buffered. The pipeline calls Flush
// at drain time for the short remainder.
type Batcher struct {
	eval BatchScorer
	mu   sync.Mutex
	buf  []pending
}

func NewBatcher(eval BatchScorer) *Batcher {
	return &Batcher{eval: eval}
}

// Submit queues the utterance and returns a channel that yields exactly one
// Result. A full buffer flushes asynchronously.
func (b *Batcher) Submit(ctx context.Context, utt *synth.Utterance) <-chan Result {
	done := make(chan Result, 1)
	b.mu.Lock()
	b.buf = append(b.buf, pending{utt: utt, done: done})
	var batch []pending
	if len(b.buf) >= b.eval.BatchSize() {
		batch = b.buf
		b.buf = nil
	}
	b.mu.Unlock()

	if batch != nil {
		go b.run(ctx, batch)
	}
	return done
}

// Flush scores whatever is buffered, regardless of batch size. Called when
// the pipeline drains.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.buf
	b.buf = nil
	b.mu.Unlock()

	if len(batch) > 0 {
		b.run(ctx, batch)
	}
}

func (b *Batcher) run(ctx context.Context, batch []pending) {
	utts := make([]*synth.Utterance, len(batch))
	for i, p := range batch {
		utts[i] = p.utt
	}
	scores, err := b.eval.EvaluateBatch(ctx, utts)
	for i, p := range batch {
		if err != nil {
			p.done <- Result{Err: err}
			continue
		}
		p.done <- Result{Score: scores[i]}
	}
}
