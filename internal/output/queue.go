package output

import (
	"context"
	"log/slog"

	"github.com/rbright/voicify-shell/internal/loop"
)

// Target is the delivery contract the Queue drives.
type Target interface {
	Deliver(ctx context.Context, text string) (Status, error)
}

// Queue serializes deliveries on one worker goroutine in submit order, so a
// slow clipboard or paste never blocks the caller.
type Queue struct {
	target Target
	logger *slog.Logger
	worker *loop.Loop
	ctx    context.Context
}

// NewQueue builds a Queue around target. Nothing is delivered until Run.
func NewQueue(target Target, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Queue{target: target, logger: logger, worker: loop.New()}
}

// Submit enqueues text for delivery. It never blocks. Texts submitted after
// Run has returned are dropped.
func (q *Queue) Submit(text string) {
	if text == "" {
		return
	}
	if !q.worker.Post(func() { q.deliver(text) }) {
		q.logger.Warn("delivery dropped; queue stopped", "chars", len(text))
	}
}

// Run delivers queued texts until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	q.ctx = ctx
	return q.worker.Run(ctx)
}

func (q *Queue) deliver(text string) {
	status, err := q.target.Deliver(q.ctx, text)
	if err != nil {
		q.logger.Error("delivery failed", "status", string(status), "chars", len(text), "error", err.Error())
		return
	}
	q.logger.Debug("delivery complete", "status", string(status), "chars", len(text))
}
