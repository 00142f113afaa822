package departments

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/AIENGINE/online-cs-backend/domain/department"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold" json:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
}

// DefaultCircuitBreakerConfig returns sensible defaults for circuit breaker configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		MaxRequests:      3,
	}
}

// CircuitBreakerDispatcher wraps a dispatcher with one circuit breaker per
// department for granular failure isolation. An open circuit surfaces as
// department unavailability, which the orchestrator degrades to an apology.
type CircuitBreakerDispatcher struct {
	next     department.DispatcherPort
	config   CircuitBreakerConfig
	breakers map[department.Key]*gobreaker.CircuitBreaker
	mutex    sync.RWMutex
}

func NewCircuitBreakerDispatcher(next department.DispatcherPort, config CircuitBreakerConfig) *CircuitBreakerDispatcher {
	return &CircuitBreakerDispatcher{
		next:     next,
		config:   config,
		breakers: make(map[department.Key]*gobreaker.CircuitBreaker),
	}
}

// Dispatch implements department.DispatcherPort with circuit breaker protection
func (c *CircuitBreakerDispatcher) Dispatch(ctx context.Context, key department.Key, customerQuery, threadID string) (string, error) {
	if !c.config.Enabled {
		return c.next.Dispatch(ctx, key, customerQuery, threadID)
	}

	breaker := c.getOrCreateBreaker(key)

	result, err := breaker.Execute(func() (interface{}, error) {
		return c.next.Dispatch(ctx, key, customerQuery, threadID)
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			logrus.WithFields(logrus.Fields{
				"department": key,
				"state":      breaker.State(),
			}).Warn("Circuit breaker is open, failing fast")
			return "", &department.UnavailableError{
				Department: key,
				Status:     http.StatusServiceUnavailable,
				StatusText: "circuit open",
			}
		}
		return "", err
	}

	return result.(string), nil
}

// GetCircuitStates returns the current state of all circuit breakers for monitoring
func (c *CircuitBreakerDispatcher) GetCircuitStates() map[department.Key]gobreaker.State {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	states := make(map[department.Key]gobreaker.State)
	for key, breaker := range c.breakers {
		states[key] = breaker.State()
	}
	return states
}

// getOrCreateBreaker gets or creates a circuit breaker for the specified department
func (c *CircuitBreakerDispatcher) getOrCreateBreaker(key department.Key) *gobreaker.CircuitBreaker {
	c.mutex.RLock()
	if breaker, exists := c.breakers[key]; exists {
		c.mutex.RUnlock()
		return breaker
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Double-check pattern: another goroutine might have created it while we waited
	if breaker, exists := c.breakers[key]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("department-%s", key),
		MaxRequests: c.config.MaxRequests,
		Interval:    0,
		Timeout:     c.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= c.config.FailureThreshold &&
				counts.TotalFailures >= c.config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"department": key,
				"from_state": from,
				"to_state":   to,
			}).Info("Circuit breaker state changed")
		},
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	c.breakers[key] = breaker

	logrus.WithField("department", key).Info("Created new circuit breaker for department")
	return breaker
}
