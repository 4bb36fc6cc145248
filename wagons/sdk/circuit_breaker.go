// Copyright 2025 The blobwagon Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package sdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen matches every CircuitBreakerOpenError
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the position of a CircuitBreaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("CircuitState(%d)", int(s))
}

// halfOpenSuccesses is how many calls must succeed after the cooldown
// before the breaker closes again.
const halfOpenSuccesses = 3

// CircuitBreaker stops calling a backend after threshold consecutive
// failures and lets calls through again once cooldown has passed.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	isFailure func(error) bool

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker opens after threshold failures and stays open for cooldown
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		isFailure: func(err error) bool { return err != nil },
	}
}

// SetFailureCondition decides which errors count against the breaker.
// Missing resources are ordinary answers and should not open the circuit.
func (cb *CircuitBreaker) SetFailureCondition(fn func(error) bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.isFailure = fn
}

// State reports the breaker's position, moving an expired open circuit to
// half-open.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()
	return cb.state
}

// Execute runs fn unless the circuit is open
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expire()
	if cb.state == CircuitOpen {
		return &CircuitBreakerOpenError{Name: cb.name}
	}
	return nil
}

// expire must be called with mu held
func (cb *CircuitBreaker) expire() {
	if cb.state == CircuitOpen && time.Since(cb.openedAt) > cb.cooldown {
		cb.state = CircuitHalfOpen
		cb.successes = 0
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && cb.isFailure(err) {
		cb.failures++
		if cb.state == CircuitHalfOpen || cb.failures >= cb.threshold {
			cb.state = CircuitOpen
			cb.openedAt = time.Now()
		}
		return
	}

	switch cb.state {
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= halfOpenSuccesses {
			cb.state = CircuitClosed
			cb.failures = 0
		}
	default:
		cb.failures = 0
	}
}

// CircuitBreakerOpenError is returned while the circuit is open
type CircuitBreakerOpenError struct {
	Name string
}

func (e *CircuitBreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open", e.Name)
}

func (e *CircuitBreakerOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}
