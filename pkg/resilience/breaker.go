package resilience

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"telecare-backend/pkg/logger"
)

// State is the circuit breaker state
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half_open"
	StateOpen     State = "open"
)

// ErrOpen is returned when the breaker rejects a call without attempting it
type ErrOpen struct{ Name string }

func (e *ErrOpen) Error() string {
	return "circuit breaker open for " + e.Name
}

var (
	breakerStateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "provider_circuit_breaker_state",
		Help: "Circuit breaker state per provider (0=closed, 1=half_open, 2=open)",
	}, []string{"provider"})

	breakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_circuit_breaker_rejections_total",
		Help: "Calls rejected while the breaker was open",
	}, []string{"provider"})
)

// Breaker is a circuit breaker around an upstream provider. After
// failureThreshold consecutive failures it opens for cooldown; the first call
// after the cooldown probes the provider (half-open) and either closes the
// breaker or re-opens it.
type Breaker struct {
	name             string
	failureThreshold int
	cooldown         time.Duration

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
}

// NewBreaker creates a closed breaker
func NewBreaker(name string, failureThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	b := &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		state:            StateClosed,
	}
	b.publishState()
	return b
}

// Execute runs op through the breaker. When the breaker is open the op is
// not attempted and *ErrOpen is returned.
func (b *Breaker) Execute(op func() error) error {
	if !b.allow() {
		breakerRejections.WithLabelValues(b.name).Inc()
		return &ErrOpen{Name: b.name}
	}

	err := op()
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = StateHalfOpen
			b.publishStateLocked()
			return true
		}
		return false
	}
	return true
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		if b.state != StateClosed {
			logger.Info("circuit breaker closed", zap.String("provider", b.name))
		}
		b.state = StateClosed
		b.consecutiveFailures = 0
		b.publishStateLocked()
		return
	}

	b.consecutiveFailures++
	if b.state == StateHalfOpen || b.consecutiveFailures >= b.failureThreshold {
		if b.state != StateOpen {
			logger.Warn("circuit breaker opened",
				zap.String("provider", b.name),
				zap.Int("consecutive_failures", b.consecutiveFailures),
				zap.Duration("cooldown", b.cooldown))
		}
		b.state = StateOpen
		b.openedAt = time.Now()
	}
	b.publishStateLocked()
}

// State returns the current breaker state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) publishState() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishStateLocked()
}

func (b *Breaker) publishStateLocked() {
	var v float64
	switch b.state {
	case StateHalfOpen:
		v = 1
	case StateOpen:
		v = 2
	}
	breakerStateGauge.WithLabelValues(b.name).Set(v)
}
