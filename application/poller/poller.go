package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultInterval is used when WaitFor is given a zero interval
const DefaultInterval = 100 * time.Millisecond

var (
	ErrInvalidInterval = errors.New("poll interval must be positive")
	ErrNilPredicate    = errors.New("predicate is nil")
)

// Predicate is a wait condition. It may read state owned by others but must
// not touch the poller.
type Predicate func() (bool, error)

// Cond adapts a plain boolean check
func Cond(check func() bool) Predicate {
	return func() (bool, error) {
		return check(), nil
	}
}

// State of a Handle
type State int32

const (
	StatePending State = iota
	StateResolved
	StateErrored
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// PredicateError is returned by a handle whose predicate failed
type PredicateError struct {
	Tick int
	Err  error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("predicate failed on tick %d: %v", e.Tick, e.Err)
}

func (e *PredicateError) Unwrap() error {
	return e.Err
}

// Handle is one in-flight wait. It owns exactly one ticker and leaves the
// pending state exactly once.
type Handle struct {
	interval time.Duration
	started  time.Time
	done     chan struct{}

	mu         sync.Mutex
	state      State
	err        error
	ticks      int
	finishedAt time.Time
}

// WaitFor - starts polling pred every interval until it reports true.
//
// The first evaluation happens one interval after the call. There is no
// timeout: the handle stays pending until the predicate holds, the predicate
// fails, or ctx is done.
func WaitFor(ctx context.Context, pred Predicate, interval time.Duration) (*Handle, error) {
	if pred == nil {
		return nil, ErrNilPredicate
	}
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < 0 {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidInterval, interval)
	}

	h := &Handle{
		interval: interval,
		started:  time.Now(),
		done:     make(chan struct{}),
	}

	ticker := time.NewTicker(interval)
	go h.run(ctx, pred, ticker)

	return h, nil
}

// Until - polls pred and blocks until the wait is over
func Until(ctx context.Context, pred Predicate, interval time.Duration) error {
	h, err := WaitFor(ctx, pred, interval)
	if err != nil {
		return err
	}
	<-h.Done()
	return h.Err()
}

func (h *Handle) run(ctx context.Context, pred Predicate, ticker *time.Ticker) {
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			h.finish(StateErrored, fmt.Errorf("poll canceled: %w", ctx.Err()), tick)
			return

		case <-ticker.C:
			tick++
			ok, err := evaluate(pred)
			if err != nil {
				ticker.Stop()
				h.finish(StateErrored, &PredicateError{Tick: tick, Err: err}, tick)
				return
			}
			if ok {
				ticker.Stop()
				h.finish(StateResolved, nil, tick)
				return
			}
			h.setTicks(tick)
		}
	}
}

// evaluate runs the predicate, turning a panic into an error
func evaluate(pred Predicate) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predicate panicked: %v", r)
		}
	}()
	return pred()
}

func (h *Handle) setTicks(n int) {
	h.mu.Lock()
	h.ticks = n
	h.mu.Unlock()
}

func (h *Handle) finish(state State, err error, ticks int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StatePending {
		return
	}
	h.state = state
	h.err = err
	h.ticks = ticks
	h.finishedAt = time.Now()
	close(h.done)
}

// Done - closed once the handle leaves the pending state
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait - blocks until the handle leaves the pending state or ctx is done.
// Cancelling ctx abandons the wait, not the poll.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State - returns the current state
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err - returns the failure of an errored handle, nil otherwise
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Ticks - returns how many times the predicate was evaluated
func (h *Handle) Ticks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ticks
}

// Interval - returns the polling interval in use
func (h *Handle) Interval() time.Duration {
	return h.interval
}

// Elapsed - time from WaitFor to resolution, or until now while pending
func (h *Handle) Elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StatePending {
		return time.Since(h.started)
	}
	return h.finishedAt.Sub(h.started)
}
