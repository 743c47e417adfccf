package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned when the breaker rejects a call without attempting it.
var ErrOpen = gobreaker.ErrOpenState

// Settings controls when the breaker trips.
type Settings struct {
	Name                string
	FailureThreshold    uint32
	MaxHalfOpenRequests uint32
	Interval            time.Duration
	Timeout             time.Duration
}

// DefaultSettings returns the thresholds used for outbound side-effect calls.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:                name,
		FailureThreshold:    5,
		MaxHalfOpenRequests: 1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
	}
}

// Breaker guards a flaky dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

func New(s Settings) *Breaker {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxHalfOpenRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// caller cancellation says nothing about the dependency
			return err == nil || errors.Is(err, context.Canceled)
		},
	})}
}

// Do runs fn under breaker protection.
func (b *Breaker) Do(fn func() error) error {
	if b == nil || b.cb == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// Open reports whether calls are currently being rejected.
func (b *Breaker) Open() bool {
	if b == nil || b.cb == nil {
		return false
	}
	return b.cb.State() == gobreaker.StateOpen
}

func (b *Breaker) State() string {
	if b == nil || b.cb == nil {
		return gobreaker.StateClosed.String()
	}
	return b.cb.State().String()
}
