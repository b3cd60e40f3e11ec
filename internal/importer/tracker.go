package importer

import (
	"context"
	"fmt"
	"sync"
)

// tracker applies the failure policy and the transport escalation rule to
// outcomes as they complete. With several workers "consecutive" follows
// completion order.
type tracker struct {
	policy       FailurePolicy
	maxTransport int

	mu     sync.Mutex
	streak int
	err    error
}

func (t *tracker) record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case o.transport():
		t.streak++
	case o.State == StateSkipped:
	default:
		t.streak = 0
	}

	if t.err != nil {
		return
	}
	switch {
	case t.maxTransport > 0 && t.streak >= t.maxTransport:
		t.err = fmt.Errorf("%w: %w after %d records", ErrBatchAborted, ErrTransportEscalated, t.streak)
	case o.State == StateFailed && t.policy == PolicyAbort:
		t.err = fmt.Errorf("%w: record %d failed at %s", ErrBatchAborted, o.Index, o.Stage)
	}
}

func (t *tracker) stopped() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// stopCause is why dispatch must stop now, or nil.
func (t *tracker) stopCause(ctx context.Context) error {
	if err := t.stopped(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBatchAborted, err)
	}
	return nil
}
