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

// Package registry creates wagons by protocol and keeps the connected
// wagons of a process by repository id.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carlosmiranda/blobwagon/shared/logger"
	"github.com/carlosmiranda/blobwagon/wagons/azureblob"
	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/cache"
	"github.com/carlosmiranda/blobwagon/wagons/config"
	"github.com/carlosmiranda/blobwagon/wagons/gcs"
	"github.com/carlosmiranda/blobwagon/wagons/s3"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// ErrUnknownRepository is returned for ids that were never configured
var ErrUnknownRepository = errors.New("unknown repository")

// Factory creates an unconnected wagon
type Factory func() base.Wagon

// Tunable is implemented by wagons built on sdk.BaseWagon
type Tunable interface {
	SetTimeout(time.Duration)
	SetReadTimeout(time.Duration)
	SetRetryConfig(*sdk.RetryConfig)
	SetRateLimiter(*sdk.RateLimiter)
	SetConcurrency(int)
	SetLogger(*logger.Logger)
	WrapStore(func(sdk.Store) sdk.Store)
	Metrics() *sdk.TransferMetrics
}

// Registry maps protocols to factories and repository ids to wagons.
// Safe for concurrent use.
type Registry struct {
	factories map[string]Factory
	settings  map[string]*config.Settings
	wagons    map[string]base.Wagon
	statCache cache.StatCache
	collector *sdk.Collector
	logger    *logger.Logger
	mu        sync.RWMutex
}

// New returns a registry with the built-in protocols registered
func New() *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		settings:  make(map[string]*config.Settings),
		wagons:    make(map[string]base.Wagon),
		logger:    logger.New("registry"),
	}
	r.RegisterFactory(base.ProtocolAzureBlob, func() base.Wagon { return azureblob.New() })
	r.RegisterFactory(base.ProtocolS3, func() base.Wagon { return s3.New() })
	r.RegisterFactory(base.ProtocolGCS, func() base.Wagon { return gcs.New() })
	r.RegisterFactory(base.ProtocolMemory, func() base.Wagon { return sdk.NewMemoryWagon() })
	return r
}

// RegisterFactory sets the factory for protocol, replacing any previous one
func (r *Registry) RegisterFactory(protocol string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[protocol] = f
}

// Protocols lists the registered protocols, sorted
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for p := range r.factories {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// SetLogger replaces the registry logger; opened wagons inherit it
func (r *Registry) SetLogger(l *logger.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

// SetStatCache puts c in front of every wagon opened afterwards
func (r *Registry) SetStatCache(c cache.StatCache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statCache = c
}

// SetCollector registers the metrics of every wagon opened afterwards
func (r *Registry) SetCollector(c *sdk.Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collector = c
}

// Open creates, tunes and connects a wagon for s. The wagon is not kept by
// the registry; see Add for that.
func (r *Registry) Open(ctx context.Context, s *config.Settings) (base.Wagon, error) {
	if s == nil || s.Repository == nil {
		return nil, fmt.Errorf("no repository to open")
	}
	repo := s.Repository

	r.mu.RLock()
	factory, ok := r.factories[repo.Protocol()]
	statCache := r.statCache
	log := r.logger
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no wagon registered for protocol '%s'", repo.Protocol())
	}

	w := factory()
	if t, ok := w.(Tunable); ok {
		t.SetLogger(log.With("repository", repo.ID))
		if s.Timeout > 0 {
			t.SetTimeout(s.Timeout)
		}
		if s.ReadTimeout > 0 {
			t.SetReadTimeout(s.ReadTimeout)
		}
		if s.MaxRetries >= 0 {
			cfg := sdk.DefaultRetryConfig()
			cfg.MaxRetries = s.MaxRetries
			t.SetRetryConfig(cfg)
		}
		if s.RateLimit > 0 {
			burst := int(s.RateLimit)
			if burst < 1 {
				burst = 1
			}
			t.SetRateLimiter(sdk.NewRateLimiter(s.RateLimit, burst))
		}
		if s.Concurrency > 0 {
			t.SetConcurrency(s.Concurrency)
		}
		if statCache != nil {
			t.WrapStore(cache.Wrap(statCache, repo.ID, log))
		}
	}

	var opts []base.ConnectOption
	if s.Auth != nil {
		opts = append(opts, base.WithAuthentication(s.Auth))
	}
	if s.Proxy != nil {
		opts = append(opts, base.WithProxy(s.Proxy))
	}
	if err := w.Connect(ctx, repo, opts...); err != nil {
		return nil, err
	}
	return w, nil
}

// Configure records settings for lazy opening by Get. It replaces earlier
// settings for the same id but leaves an open wagon in place.
func (r *Registry) Configure(s *config.Settings) error {
	if s == nil || s.Repository == nil || s.Repository.ID == "" {
		return fmt.Errorf("settings need a repository with an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[s.Repository.ID] = s
	return nil
}

// ConfigureFile records every enabled repository of f
func (r *Registry) ConfigureFile(ctx context.Context, f *config.File, secrets config.SecretsProvider) error {
	for _, id := range f.EnabledRepositories() {
		s, err := f.Settings(ctx, id, secrets)
		if err != nil {
			return err
		}
		if err := r.Configure(s); err != nil {
			return err
		}
	}
	return nil
}

// Add opens s and keeps the wagon under the repository id
func (r *Registry) Add(ctx context.Context, s *config.Settings) (base.Wagon, error) {
	if err := r.Configure(s); err != nil {
		return nil, err
	}
	return r.Get(ctx, s.Repository.ID)
}

// Get returns the wagon for id, opening it on first use
func (r *Registry) Get(ctx context.Context, id string) (base.Wagon, error) {
	r.mu.RLock()
	w, ok := r.wagons[id]
	s, configured := r.settings[id]
	r.mu.RUnlock()
	if ok {
		return w, nil
	}
	if !configured {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownRepository, id)
	}

	w, err := r.Open(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository '%s': %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.wagons[id]; ok {
		// Lost the race; keep the first wagon
		_ = w.Disconnect(ctx)
		return existing, nil
	}
	r.wagons[id] = w
	if r.collector != nil {
		if t, ok := w.(Tunable); ok {
			r.collector.Register(id, t.Metrics())
		}
	}
	r.logger.Info("repository opened", map[string]interface{}{"repository": s.Repository.String()})
	return w, nil
}

// Remove disconnects and forgets id
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	w, ok := r.wagons[id]
	_, configured := r.settings[id]
	delete(r.wagons, id)
	delete(r.settings, id)
	collector := r.collector
	r.mu.Unlock()

	if !ok && !configured {
		return fmt.Errorf("%w: '%s'", ErrUnknownRepository, id)
	}
	if collector != nil {
		collector.Unregister(id)
	}
	if ok {
		return w.Disconnect(ctx)
	}
	return nil
}

// List returns the configured repository ids, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.settings))
	for id := range r.settings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close disconnects every open wagon and returns the first error
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	wagons := r.wagons
	r.wagons = make(map[string]base.Wagon)
	r.mu.Unlock()

	var first error
	for id, w := range wagons {
		if err := w.Disconnect(ctx); err != nil {
			r.logger.ErrorWithCause("disconnect failed", err, map[string]interface{}{"repository": id})
			if first == nil {
				first = err
			}
		}
	}
	return first
}
