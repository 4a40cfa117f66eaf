package ingestion

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/docrag/core"
)

// Stage boundaries of the overall ingestion fraction.
const (
	fractionLoaded    = 0.1
	fractionExtracted = 0.5
	fractionChunked   = 0.8
	fractionEmbedded  = 0.95
	fractionDone      = 1.0
)

// progressBuffer is how many undelivered updates may queue before
// intermediate updates are dropped.
const progressBuffer = 64

// DefaultProgressTimeout is how long a finished run waits for the progress
// callback to take the final update.
const DefaultProgressTimeout = 5 * time.Second

// Progress is one ingestion progress update.
type Progress struct {
	DocumentID string
	State      core.IngestionState
	Fraction   float64 // monotonically non-decreasing within one run, in [0, 1]
	Message    string
}

// ProgressFunc receives progress updates. It is called from a dedicated
// goroutine, one update at a time. Returned errors and panics are logged and
// otherwise ignored.
type ProgressFunc func(Progress) error

// reporter delivers progress updates to a ProgressFunc without blocking the
// pipeline. Intermediate updates are dropped when the callback falls behind;
// the final update is always queued and the run waits a bounded time for it.
type reporter struct {
	fn      ProgressFunc
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	id       string
	state    core.IngestionState
	fraction float64
	closed   bool

	updates chan Progress
	done    chan struct{}
}

func newReporter(fn ProgressFunc, timeout time.Duration, logger *slog.Logger) *reporter {
	if timeout <= 0 {
		timeout = DefaultProgressTimeout
	}
	r := &reporter{fn: fn, timeout: timeout, logger: logger}
	if fn == nil {
		return r
	}
	r.updates = make(chan Progress, progressBuffer)
	r.done = make(chan struct{})
	go r.run()
	return r
}

func (r *reporter) run() {
	defer close(r.done)
	for p := range r.updates {
		r.deliver(p)
	}
}

func (r *reporter) deliver(p Progress) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("progress callback panicked", "document", p.DocumentID, "panic", fmt.Sprint(rec))
		}
	}()
	if err := r.fn(p); err != nil {
		r.logger.Warn("progress callback failed", "document", p.DocumentID, "err", err)
	}
}

// setDocument names the document in subsequent updates.
func (r *reporter) setDocument(id string) {
	r.mu.Lock()
	r.id = id
	r.mu.Unlock()
}

// report emits an update. Fractions below the last reported fraction are
// raised to it.
func (r *reporter) report(state core.IngestionState, fraction float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	p := r.next(state, fraction, message)
	if r.updates == nil {
		return
	}
	select {
	case r.updates <- p:
	default:
		r.logger.Debug("dropping progress update", "document", p.DocumentID, "fraction", p.Fraction)
	}
}

// pulse re-emits the current state and fraction with a new message.
func (r *reporter) pulse(message string) {
	r.mu.Lock()
	state, fraction := r.state, r.fraction
	r.mu.Unlock()
	r.report(state, fraction, message)
}

// current returns the last reported fraction.
func (r *reporter) current() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fraction
}

// finish queues the final update and waits until the callback has seen it,
// or until the timeout passes. Queued intermediate updates are dropped to make
// room. Later reports are ignored.
func (r *reporter) finish(state core.IngestionState, fraction float64, message string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	p := r.next(state, fraction, message)
	r.closed = true
	if r.updates != nil {
		for sent := false; !sent; {
			select {
			case r.updates <- p:
				sent = true
			default:
				select {
				case <-r.updates:
				default:
				}
			}
		}
		close(r.updates)
	}
	r.mu.Unlock()

	if r.done == nil {
		return
	}
	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-timer.C:
		r.logger.Warn("progress callback did not return, not waiting for it",
			"document", p.DocumentID, "timeout", r.timeout)
	}
}

// next builds an update and records it as current. Caller holds mu.
func (r *reporter) next(state core.IngestionState, fraction float64, message string) Progress {
	fraction = min(max(fraction, r.fraction, 0), 1)
	r.state, r.fraction = state, fraction
	return Progress{DocumentID: r.id, State: state, Fraction: fraction, Message: message}
}

// span maps step i of n into [from, to).
func span(from, to float64, i, n int) float64 {
	if n <= 0 {
		return to
	}
	return from + (to-from)*float64(i)/float64(n)
}
