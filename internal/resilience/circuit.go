// Package resilience wraps provider calls with retries and per-host circuit
// breakers so a dead upstream fails fast instead of stalling every entity.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ticker-ingest/internal/config"
)

// BreakerState is the state of a circuit breaker.
type BreakerState int

const (
	// StateClosed lets calls through.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen
	// StateHalfOpen lets probe calls through.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a breaker rejects a call.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
	// Probes is the number of successful probes that close the breaker.
	Probes int
	// Trips decides whether an error counts as a failure. Defaults to
	// IsTransient: a 404 or an empty payload says nothing about host health.
	Trips func(err error) bool
	// OnStateChange is called on every transition.
	OnStateChange func(from, to BreakerState)
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		Probes:           1,
	}
}

// BreakerConfigFrom builds a BreakerConfig from the circuit config section.
func BreakerConfigFrom(cfg config.CircuitConfig) BreakerConfig {
	b := DefaultBreakerConfig()
	if cfg.FailureThreshold > 0 {
		b.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.ResetTimeoutSecs > 0 {
		b.ResetTimeout = time.Duration(cfg.ResetTimeoutSecs) * time.Second
	}
	return b
}

// Breaker is a circuit breaker for one upstream host.
type Breaker struct {
	cfg BreakerConfig

	mu        sync.Mutex
	state     BreakerState
	failures  int
	openedAt  time.Time
	probeWins int
	now       func() time.Time
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	d := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = d.ResetTimeout
	}
	if cfg.Probes <= 0 {
		cfg.Probes = d.Probes
	}
	if cfg.Trips == nil {
		cfg.Trips = IsTransient
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Guard runs fn through the breaker.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the current state, reporting half-open once the reset
// timeout of an open breaker has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probeWins = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.transition(StateHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || !b.cfg.Trips(err) {
		switch b.state {
		case StateHalfOpen:
			b.probeWins++
			if b.probeWins >= b.cfg.Probes {
				b.failures = 0
				b.probeWins = 0
				b.transition(StateClosed)
			}
		case StateClosed:
			b.failures = 0
		}
		return
	}

	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.probeWins = 0
		b.openedAt = b.now()
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}

// HostBreakers hands out one breaker per upstream host.
type HostBreakers struct {
	cfg      BreakerConfig
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewHostBreakers returns an empty registry.
func NewHostBreakers(cfg BreakerConfig) *HostBreakers {
	return &HostBreakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker of host, creating it on first use.
func (h *HostBreakers) For(host string) *Breaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.breakers[host]; ok {
		return b
	}
	cfg := h.cfg
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to BreakerState) {
			zap.L().Warn("circuit breaker state change",
				zap.String("host", host),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	b := NewBreaker(cfg)
	h.breakers[host] = b
	return b
}

// States returns a snapshot of every breaker state keyed by host.
func (h *HostBreakers) States() map[string]BreakerState {
	h.mu.Lock()
	hosts := make(map[string]*Breaker, len(h.breakers))
	for host, b := range h.breakers {
		hosts[host] = b
	}
	h.mu.Unlock()

	out := make(map[string]BreakerState, len(hosts))
	for host, b := range hosts {
		out[host] = b.State()
	}
	return out
}
