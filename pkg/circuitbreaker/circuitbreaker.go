package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState int

const (
	Closed CircuitState = iota
	Open
	// HalfOpen lets one probe call through at a time after the recovery timeout.
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s CircuitState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

type Config struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout time.Duration
	// SuccessThreshold successful probes close it again.
	SuccessThreshold int

	// IsFailure decides which errors count against the circuit. Nil counts every error.
	IsFailure func(error) bool
	// OnStateChange runs after a transition, outside the breaker lock.
	OnStateChange func(from, to CircuitState)
}

func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker wraps calls to a flaky dependency and fails fast while it is down.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	probing   bool
	openUntil time.Time
}

// New returns a closed breaker. A nil config uses DefaultConfig.
func New(cfg *Config) *Breaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 1
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}

	return &Breaker{cfg: c, now: time.Now}
}

// Call runs fn unless the circuit is open. fn is never called under the lock.
func (b *Breaker) Call(fn func() error) error {
	if !b.acquire() {
		return ErrCircuitOpen
	}

	err := fn()
	b.release(err)
	return err
}

func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures is the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) acquire() bool {
	b.mu.Lock()
	from := b.state

	if b.state == Open && !b.now().Before(b.openUntil) {
		b.state = HalfOpen
		b.successes = 0
	}

	allowed := true
	switch b.state {
	case Open:
		allowed = false
	case HalfOpen:
		allowed = !b.probing
		b.probing = true
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return allowed
}

func (b *Breaker) release(err error) {
	b.mu.Lock()
	from := b.state
	b.probing = false

	if err != nil && b.countsAsFailure(err) {
		b.failures++
		if b.state == HalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	} else {
		b.failures = 0
		if b.state == HalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.state = Closed
				b.successes = 0
			}
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *Breaker) trip() {
	b.state = Open
	b.successes = 0
	b.openUntil = b.now().Add(b.cfg.RecoveryTimeout)
}

func (b *Breaker) countsAsFailure(err error) bool {
	return b.cfg.IsFailure == nil || b.cfg.IsFailure(err)
}

func (b *Breaker) notify(from, to CircuitState) {
	if from != to && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
