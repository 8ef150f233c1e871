package redis

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/eyadof/Net-Async-Redis/internal/protocol"
)

// Reply is one decoded RESP value.
type Reply = protocol.Reply

// Future is the pending result of one command. It resolves exactly once,
// either with the server's reply or with an error.
type Future struct {
	label string

	done      chan struct{}
	once      sync.Once
	reply     Reply
	err       error
	cancelled atomic.Bool
}

func newFuture(label string) *Future {
	return &Future{label: label, done: make(chan struct{})}
}

// Label is the uppercased command token the future was created for (the
// full joined command for KEYS), kept for diagnostics.
func (f *Future) Label() string { return f.label }

// Done is closed when the future has resolved or failed.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the reply arrives or ctx ends. A context cancellation
// marks the future cancelled: if its bytes are still queued they are
// dropped, and if they were already written the eventual reply is
// discarded without disturbing the reply order of other requests.
func (f *Future) Wait(ctx context.Context) (Reply, error) {
	select {
	case <-f.done:
		return f.reply, f.err
	case <-ctx.Done():
		f.Cancel()
		return Reply{}, cancelledErr(ctx.Err())
	}
}

// Cancel withdraws interest in the result. Cancellation is best-effort
// once the command has been written; the pending slot is preserved so
// FIFO pairing with other requests is unaffected.
func (f *Future) Cancel() {
	f.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (f *Future) Cancelled() bool { return f.cancelled.Load() }

func (f *Future) resolve(r Reply) {
	f.once.Do(func() {
		f.reply = r
		close(f.done)
	})
}

func (f *Future) fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// failedFuture returns an already-failed future.
func failedFuture(label string, err error) *Future {
	f := newFuture(label)
	f.fail(err)
	return f
}
