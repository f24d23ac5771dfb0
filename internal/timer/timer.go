// Package timer implements the focus timer: a one-second ticker that counts
// study time toward a target and stops itself once the target is reached.
package timer

import (
	"errors"
	"sync"
	"time"
)

// State is the lifecycle position of a Timer.
type State int

// Timer states.
const (
	Idle State = iota
	Running
	Paused
	Completed
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

var (
	// ErrInvalidTarget is returned by New for a target below one minute.
	ErrInvalidTarget = errors.New("target must be at least one minute")
	// ErrInvalidState is returned when an operation does not apply to the current state.
	ErrInvalidState = errors.New("invalid timer state")
)

// Ticker abstracts time.Ticker so tests can drive the clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ *time.Ticker }

func (t realTicker) C() <-chan time.Time { return t.Ticker.C }

func newRealTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

// Option configures a Timer.
type Option func(*Timer)

// WithTicker replaces the ticker factory.
func WithTicker(factory func(time.Duration) Ticker) Option {
	return func(t *Timer) {
		t.newTicker = factory
	}
}

// WithOnTick registers a callback invoked after every counted second. It runs
// on the timer goroutine and must not call back into the Timer.
func WithOnTick(fn func(elapsed time.Duration)) Option {
	return func(t *Timer) {
		t.onTick = fn
	}
}

// Timer counts whole seconds while running. Pausing keeps the count, so
// resumed time continues exactly where it left off.
type Timer struct {
	mu        sync.Mutex
	target    int
	seconds   int
	state     State
	stop      chan struct{}
	done      chan struct{}
	newTicker func(time.Duration) Ticker
	onTick    func(time.Duration)
}

// New creates an idle timer for targetMinutes.
func New(targetMinutes int, opts ...Option) (*Timer, error) {
	if targetMinutes < 1 {
		return nil, ErrInvalidTarget
	}
	t := &Timer{
		target:    targetMinutes,
		done:      make(chan struct{}),
		newTicker: newRealTicker,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Start begins counting.
func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return ErrInvalidState
	}
	t.launch()
	return nil
}

// Pause suspends counting.
func (t *Timer) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running {
		return ErrInvalidState
	}
	t.halt(Paused)
	return nil
}

// Resume continues a paused timer.
func (t *Timer) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Paused {
		return ErrInvalidState
	}
	t.launch()
	return nil
}

// Stop ends the timer and returns the whole minutes completed. Stopping a
// finished timer only reports its minutes.
func (t *Timer) Stop() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Running || t.state == Paused || t.state == Idle {
		t.halt(Stopped)
	}
	return t.seconds / 60
}

// Elapsed returns the counted running time.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.seconds) * time.Second
}

// Minutes returns the whole minutes counted so far.
func (t *Timer) Minutes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seconds / 60
}

// Target returns the goal in minutes.
func (t *Timer) Target() int { return t.target }

// State reports the lifecycle state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed when the target is reached.
func (t *Timer) Done() <-chan struct{} { return t.done }

// launch must be called with mu held.
func (t *Timer) launch() {
	t.state = Running
	t.stop = make(chan struct{})
	go t.run(t.newTicker(time.Second), t.stop)
}

// halt must be called with mu held.
func (t *Timer) halt(next State) {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.state = next
}

func (t *Timer) run(ticker Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			elapsed, counted, finished := t.tick(stop)
			if counted && t.onTick != nil {
				t.onTick(elapsed)
			}
			if finished || !counted {
				return
			}
		}
	}
}

// tick counts one second if stop still belongs to the active run.
func (t *Timer) tick(stop <-chan struct{}) (time.Duration, bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running || t.stop == nil || (<-chan struct{})(t.stop) != stop {
		return 0, false, false
	}
	t.seconds++
	elapsed := time.Duration(t.seconds) * time.Second
	if t.seconds/60 >= t.target {
		t.halt(Completed)
		close(t.done)
		return elapsed, true, true
	}
	return elapsed, true, false
}
