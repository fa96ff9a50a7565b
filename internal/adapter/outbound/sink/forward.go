package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// ScoreWriter is the observability-backend port the forwarder sends scores
// to. Implementations attach the score to the trace/observation it names.
type ScoreWriter interface {
	WriteScore(ctx context.Context, score eval.Score) error
}

// forwardTimeout bounds the backend calls made during Flush.
const forwardTimeout = 30 * time.Second

// Forwarder sends trace-linked scores to an observability backend. Scores
// without a trace id have nothing to attach to and are skipped.
type Forwarder struct {
	mu     sync.Mutex
	writer ScoreWriter
	buf    []eval.Score
}

// NewForwarder creates a forwarder targeting writer.
func NewForwarder(writer ScoreWriter) *Forwarder {
	return &Forwarder{writer: writer}
}

// Emit buffers a trace-linked score for forwarding.
func (f *Forwarder) Emit(score eval.Score) error {
	if score.TraceID == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf = append(f.buf, score)
	return nil
}

// EmitRun is a no-op: the backend tracks runs through its own traces.
func (f *Forwarder) EmitRun(*eval.EvalResult) error { return nil }

// Flush forwards the buffered scores. All scores are attempted; errors are
// joined.
func (f *Forwarder) Flush() error {
	f.mu.Lock()
	buf := f.buf
	f.buf = nil
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()

	var errs []error
	for _, score := range buf {
		if err := f.writer.WriteScore(ctx, score); err != nil {
			errs = append(errs, fmt.Errorf("forward score %s/%s: %w", score.TraceID, score.Name, err))
		}
	}
	return errors.Join(errs...)
}
