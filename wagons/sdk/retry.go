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
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/carlosmiranda/blobwagon/wagons/base"
)

// RetryConfig controls how data-plane store calls are repeated
type RetryConfig struct {
	// MaxRetries counts attempts after the first; zero runs the call once.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Jitter spreads each wait by up to plus or minus this fraction.
	Jitter float64
	// RetryIf judges errors that carry no RetryableError or
	// NonRetryableError mark. A nil RetryIf retries every unmarked error.
	RetryIf func(error) bool
}

// DefaultRetryConfig returns the retry configuration used for data-plane calls
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.1,
		RetryIf:         DefaultRetryCondition,
	}
}

// NoRetryConfig runs the operation exactly once
func NoRetryConfig() *RetryConfig {
	return &RetryConfig{MaxRetries: 0, RetryIf: DefaultRetryCondition}
}

// transientMessages are matched against errors from transports that expose
// nothing better than text.
var transientMessages = []string{
	"connection refused",
	"connection reset",
	"i/o timeout",
	"server busy",
	"serverbusy",
	"service unavailable",
	"too many requests",
	"slowdown",
	"throttl",
	"internal error",
}

// DefaultRetryCondition reports whether err looks transient
func DefaultRetryCondition(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, base.ErrNotFound), errors.Is(err, base.ErrAuthorization),
		errors.Is(err, base.ErrAuthentication), errors.Is(err, base.ErrInvalidResourceName):
		return false
	case isRetryable(err):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// MarkTransient wraps err in a RetryableError when status says the service
// is throttling or briefly unavailable. A Retry-After header, in seconds or
// as an HTTP date, sets the wait before the next attempt. Any other status
// returns err unchanged.
func MarkTransient(err error, status int, header http.Header) error {
	if err == nil {
		return nil
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &RetryableError{Err: err, RetryAfter: parseRetryAfter(header, time.Now())}
	}
	return err
}

func parseRetryAfter(header http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// RetryableError marks err as worth another attempt regardless of RetryIf
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

func isRetryable(err error) bool {
	var marked *RetryableError
	return errors.As(err, &marked)
}

func retryAfter(err error) time.Duration {
	var marked *RetryableError
	if errors.As(err, &marked) {
		return marked.RetryAfter
	}
	return 0
}

// NonRetryableError stops the retry loop at the first failure
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

func isNonRetryable(err error) bool {
	var marked *NonRetryableError
	return errors.As(err, &marked)
}

// RetryError is returned once every allowed attempt has failed
type RetryError struct {
	Err      error
	Attempts int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// RetryFunc is one attempt of a retried call
type RetryFunc[T any] func() (T, error)

// RetryWithBackoff calls fn until it succeeds, fails with an error that is
// not worth repeating, or runs out of attempts. Errors that stop the loop
// early are returned as they are; exhausting more than one attempt yields a
// *RetryError.
func RetryWithBackoff[T any](ctx context.Context, cfg *RetryConfig, fn RetryFunc[T]) (T, error) {
	var zero T
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	delays := newBackoff(cfg)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !cfg.shouldRetry(err) {
			return zero, err
		}
		if attempt > cfg.MaxRetries {
			if attempt == 1 {
				return zero, err
			}
			return zero, &RetryError{Err: err, Attempts: attempt}
		}

		wait := delays.next()
		if d := retryAfter(err); d > 0 {
			wait = d
		}
		if cfg.MaxInterval > 0 && wait > cfg.MaxInterval {
			wait = cfg.MaxInterval
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
}

// RetryVoid is RetryWithBackoff for calls without a result
func RetryVoid(ctx context.Context, cfg *RetryConfig, fn func() error) error {
	_, err := RetryWithBackoff(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (c *RetryConfig) shouldRetry(err error) bool {
	switch {
	case isNonRetryable(err):
		return false
	case isRetryable(err), c.RetryIf == nil:
		return true
	default:
		return c.RetryIf(err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff yields exponentially growing waits capped at MaxInterval
type backoff struct {
	cfg     *RetryConfig
	attempt int
}

func newBackoff(cfg *RetryConfig) *backoff {
	return &backoff{cfg: cfg}
}

func (b *backoff) next() time.Duration {
	d := float64(b.cfg.InitialInterval)
	if b.cfg.Multiplier > 0 {
		d *= math.Pow(b.cfg.Multiplier, float64(b.attempt))
	}
	if ceiling := float64(b.cfg.MaxInterval); ceiling > 0 && d > ceiling {
		d = ceiling
	}
	if j := b.cfg.Jitter; j > 0 {
		d += d * j * (rand.Float64()*2 - 1)
	}
	b.attempt++
	return time.Duration(d)
}
