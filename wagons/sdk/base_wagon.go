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

	"github.com/carlosmiranda/blobwagon/shared/logger"
	"github.com/carlosmiranda/blobwagon/wagons/base"
)

// DefaultConcurrency bounds parallel uploads in PutDirectory
const DefaultConcurrency = 4

// Dialer opens the backend Store for a repository. Authentication failures
// should wrap base.ErrAuthentication.
type Dialer func(ctx context.Context, repo *base.Repository, auth *base.AuthenticationInfo, proxy *base.ProxyInfo) (Store, error)

// BaseWagon implements base.Wagon on top of a Store. Backends embed it and
// supply a Dialer.
type BaseWagon struct {
	wagonType   string
	version     string
	repo        *base.Repository
	auth        *base.AuthenticationInfo
	proxy       *base.ProxyInfo
	dialer      Dialer
	wrap        []func(Store) Store
	store       Store
	injected    bool
	connected   bool
	interactive bool
	timeout     time.Duration
	readTimeout time.Duration
	concurrency int

	sessionListeners  []base.SessionListener
	transferListeners []base.TransferListener

	retryConfig *RetryConfig
	rateLimiter *RateLimiter
	metrics     *TransferMetrics
	logger      *logger.Logger
	mu          sync.RWMutex
}

// NewBaseWagon creates an unconnected wagon that dials on Connect
func NewBaseWagon(wagonType string, dialer Dialer) *BaseWagon {
	return &BaseWagon{
		wagonType:   wagonType,
		version:     "1.0.0",
		dialer:      dialer,
		concurrency: DefaultConcurrency,
		retryConfig: DefaultRetryConfig(),
		metrics:     NewTransferMetrics(wagonType),
		logger:      logger.New("wagon-" + wagonType),
	}
}

// NewBaseWagonWithStore creates a wagon that is already open and connected
// to repo through store.
func NewBaseWagonWithStore(wagonType string, repo *base.Repository, store Store) *BaseWagon {
	w := NewBaseWagon(wagonType, nil)
	w.repo = repo
	w.store = store
	w.injected = true
	w.connected = true
	w.metrics.RecordConnect()
	return w
}

// Connect opens a session to repo
func (w *BaseWagon) Connect(ctx context.Context, repo *base.Repository, opts ...base.ConnectOption) error {
	if repo == nil {
		return base.NewWagonError(w.wagonType, "Connect", base.ErrConnection, "repository is nil", nil)
	}

	o, err := base.ApplyConnectOptions(opts...)
	if err != nil {
		return base.NewWagonError(w.wagonType, "Connect", base.ErrConnection, "invalid connect options", err)
	}

	w.mu.Lock()
	if w.connected {
		w.mu.Unlock()
		return base.NewWagonError(w.nameFor(repo), "Connect", base.ErrConnection,
			fmt.Sprintf("already connected to %s", w.repo), nil)
	}
	if w.injected && w.repo != nil && repo != w.repo && repo.URL != w.repo.URL {
		current := w.repo
		w.mu.Unlock()
		return base.NewWagonError(w.nameFor(repo), "Connect", base.ErrConnection,
			fmt.Sprintf("wagon is bound to %s and cannot connect to %s", current, repo), nil)
	}
	w.repo = repo
	w.auth = o.Authentication
	w.proxy = o.ResolveProxy(repo.Protocol())
	w.mu.Unlock()

	w.fireSession(base.SessionOpening, nil)

	if err := w.OpenConnection(ctx); err != nil {
		w.fireSession(base.SessionConnectionRefused, err)
		w.logger.ErrorWithCause("connection refused", err, map[string]interface{}{"repository": repo.String()})
		return err
	}

	w.fireSession(base.SessionOpened, nil)
	w.fireSession(base.SessionLoggedIn, nil)
	w.logger.Info("connected", map[string]interface{}{"repository": repo.String()})
	return nil
}

// OpenConnection dials the store under the connection timeout
func (w *BaseWagon) OpenConnection(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := w.nameFor(w.repo)

	if w.store != nil && (w.injected || w.connected) {
		if !w.connected {
			w.connected = true
			w.metrics.RecordConnect()
		}
		return nil
	}
	if w.repo == nil {
		return base.NewWagonError(name, "OpenConnection", base.ErrConnection, "no repository", nil)
	}
	if w.dialer == nil {
		return base.NewWagonError(name, "OpenConnection", base.ErrConnection, "no dialer configured", nil)
	}

	dctx, cancel := context.WithTimeout(ctx, w.timeoutOrDefault())
	defer cancel()

	store, err := w.dialer(dctx, w.repo, w.auth, w.proxy)
	if err != nil {
		kind := base.ErrConnection
		if errors.Is(err, base.ErrAuthentication) {
			kind = base.ErrAuthentication
		}
		return base.NewWagonError(name, "OpenConnection", kind,
			fmt.Sprintf("failed to connect to %s", w.repo), err)
	}

	for _, fn := range w.wrap {
		store = fn(store)
	}
	w.store = store
	w.connected = true
	w.metrics.RecordConnect()
	return nil
}

// WrapStore decorates the store with fn. An open store is wrapped
// immediately; dialed stores are wrapped on every connect.
func (w *BaseWagon) WrapStore(fn func(Store) Store) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wrap = append(w.wrap, fn)
	if w.store != nil {
		w.store = fn(w.store)
	}
}

// Disconnect closes the session. It is a no-op when not connected.
func (w *BaseWagon) Disconnect(ctx context.Context) error {
	w.mu.RLock()
	connected := w.connected
	w.mu.RUnlock()
	if !connected {
		return nil
	}

	w.fireSession(base.SessionDisconnecting, nil)
	w.fireSession(base.SessionLoggedOff, nil)

	w.mu.Lock()
	store := w.store
	if !w.injected {
		w.store = nil
	}
	w.connected = false
	name := w.nameFor(w.repo)
	w.mu.Unlock()

	w.metrics.RecordDisconnect()

	if store != nil && !w.injected {
		if err := store.Close(); err != nil {
			werr := base.NewWagonError(name, "Disconnect", base.ErrConnection, "failed to close store", err)
			w.fireSession(base.SessionError, werr)
			return werr
		}
	}

	w.fireSession(base.SessionDisconnected, nil)
	w.logger.Info("disconnected", map[string]interface{}{"wagon": name})
	return nil
}

// Repository returns the connected repository, or nil
func (w *BaseWagon) Repository() *base.Repository {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.repo
}

// AuthenticationInfo returns the credentials passed to Connect
func (w *BaseWagon) AuthenticationInfo() *base.AuthenticationInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.auth
}

// ProxyInfo returns the proxy resolved at Connect
func (w *BaseWagon) ProxyInfo() *base.ProxyInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.proxy
}

// Store returns the open store, or nil
func (w *BaseWagon) Store() Store {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.store
}

// IsConnected returns the connection status
func (w *BaseWagon) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// SupportsDirectoryCopy is always true; PutDirectory uploads file by file.
func (w *BaseWagon) SupportsDirectoryCopy() bool {
	return true
}

// SetTimeout bounds connection establishment and metadata calls.
// Non-positive values restore the default.
func (w *BaseWagon) SetTimeout(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timeout = d
}

// Timeout returns the effective connection timeout
func (w *BaseWagon) Timeout() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.timeoutOrDefault()
}

func (w *BaseWagon) timeoutOrDefault() time.Duration {
	if w.timeout > 0 {
		return w.timeout
	}
	return base.DefaultConnectionTimeout
}

// SetReadTimeout bounds data transfer calls. Non-positive values restore the default.
func (w *BaseWagon) SetReadTimeout(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.readTimeout = d
}

// ReadTimeout returns the effective read timeout
func (w *BaseWagon) ReadTimeout() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.readTimeout > 0 {
		return w.readTimeout
	}
	return base.DefaultReadTimeout
}

func (w *BaseWagon) IsInteractive() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.interactive
}

func (w *BaseWagon) SetInteractive(interactive bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.interactive = interactive
}

// Name returns the repository id, or the wagon type before connect
func (w *BaseWagon) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.nameFor(w.repo)
}

func (w *BaseWagon) nameFor(repo *base.Repository) string {
	if repo != nil && repo.ID != "" {
		return repo.ID
	}
	return w.wagonType
}

// Type returns the wagon protocol
func (w *BaseWagon) Type() string {
	return w.wagonType
}

// Version returns the wagon version
func (w *BaseWagon) Version() string {
	return w.version
}

// SetRetryConfig sets the retry configuration for data-plane calls
func (w *BaseWagon) SetRetryConfig(config *RetryConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.retryConfig = config
}

// GetRetryConfig returns the retry configuration
func (w *BaseWagon) GetRetryConfig() *RetryConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.retryConfig
}

// SetRateLimiter sets a limiter applied before every store call
func (w *BaseWagon) SetRateLimiter(limiter *RateLimiter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rateLimiter = limiter
}

// SetConcurrency bounds parallel uploads in PutDirectory
func (w *BaseWagon) SetConcurrency(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n < 1 {
		n = DefaultConcurrency
	}
	w.concurrency = n
}

// SetLogger replaces the logger
func (w *BaseWagon) SetLogger(l *logger.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger = l
}

// Logger returns the logger
func (w *BaseWagon) Logger() *logger.Logger {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.logger
}

// Metrics returns the wagon metrics
func (w *BaseWagon) Metrics() *TransferMetrics {
	return w.metrics
}

// session returns the open store or an ErrNotConnected failure
func (w *BaseWagon) session(op string) (Store, string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	name := w.nameFor(w.repo)
	if !w.connected || w.store == nil {
		return nil, name, base.NewWagonError(name, op, base.ErrNotConnected, "not connected", nil)
	}
	return w.store, name, nil
}

func (w *BaseWagon) wait(ctx context.Context) error {
	w.mu.RLock()
	limiter := w.rateLimiter
	w.mu.RUnlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

var _ base.Wagon = (*BaseWagon)(nil)
