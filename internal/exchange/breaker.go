package exchange

import (
	"sync"
	"time"

	"coinspread/pkg/model"
)

const (
	breakerThreshold = 5
	breakerCooldown  = 5 * time.Minute
)

// Status mirrors model.ExchangeState.Status values.
const (
	StatusActive      = "active"
	StatusError       = "error"
	StatusRateLimited = "rate_limited"
	StatusDisabled    = "disabled"
)

// Breaker is a per-exchange circuit breaker. It opens after threshold
// consecutive failures and lets a request through again once cooldown has elapsed.
type Breaker struct {
	mu          sync.Mutex
	threshold   int
	cooldown    time.Duration
	failures    int
	lastFailure time.Time
	status      string
	disabled    bool

	now func() time.Time // injectable for tests
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		status:    StatusActive,
		now:       time.Now,
	}
}

// Allow reports whether a request may proceed. When the cooldown has elapsed
// the breaker resets and lets a trial request through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disabled {
		return false
	}
	if b.failures < b.threshold {
		return true
	}
	if b.now().Sub(b.lastFailure) >= b.cooldown {
		b.failures = 0
		b.status = StatusActive
		return true
	}
	return false
}

// Success resets the failure streak.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if !b.disabled {
		b.status = StatusActive
	}
}

// Failure records a failed request; at threshold the breaker opens.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.threshold {
		b.status = StatusError
	}
}

// RateLimited marks the venue as throttling us without opening the breaker.
func (b *Breaker) RateLimited() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = StatusRateLimited
}

// Disable takes the venue out of rotation for the rest of the process, used
// when it blocks us outright and no cooldown would help.
func (b *Breaker) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disabled = true
	b.status = StatusDisabled
}

// State reports the breaker's view of the exchange.
func (b *Breaker) State(exchange string) model.ExchangeState {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := model.ExchangeState{
		Exchange:    exchange,
		Status:      b.status,
		Failures:    b.failures,
		CircuitOpen: b.disabled || (b.failures >= b.threshold && b.now().Sub(b.lastFailure) < b.cooldown),
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		s.LastFailure = &t
	}
	return s
}
