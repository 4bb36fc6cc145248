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

package cache

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/carlosmiranda/blobwagon/shared/logger"
	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// Store reads Stat and Exists through a StatCache. Cache failures are
// logged and the backend is consulted instead.
type Store struct {
	sdk.Store
	cache     StatCache
	namespace string
	log       *logger.Logger
}

// Wrap returns a decorator suitable for sdk.BaseWagon.WrapStore. namespace
// keeps keys of different repositories apart in a shared cache.
func Wrap(cache StatCache, namespace string, log *logger.Logger) func(sdk.Store) sdk.Store {
	return func(s sdk.Store) sdk.Store {
		return NewStore(s, cache, namespace, log)
	}
}

// NewStore decorates s
func NewStore(s sdk.Store, cache StatCache, namespace string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{Store: s, cache: cache, namespace: namespace, log: log}
}

func (s *Store) cacheKey(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + "/" + key
}

func (s *Store) lookup(ctx context.Context, key string) (*Entry, bool) {
	e, ok, err := s.cache.Get(ctx, s.cacheKey(key))
	if err != nil {
		s.log.Warn("stat cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		return nil, false
	}
	return e, ok
}

func (s *Store) remember(ctx context.Context, key string, e *Entry) {
	if err := s.cache.Set(ctx, s.cacheKey(key), e); err != nil {
		s.log.Warn("stat cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (s *Store) Stat(ctx context.Context, key string) (*sdk.ObjectInfo, error) {
	if e, ok := s.lookup(ctx, key); ok {
		if !e.Exists {
			return nil, fmt.Errorf("%w: %s (cached)", base.ErrNotFound, key)
		}
		if e.Info != nil {
			info := *e.Info
			return &info, nil
		}
	}

	info, err := s.Store.Stat(ctx, key)
	switch {
	case err == nil:
		s.remember(ctx, key, &Entry{Exists: true, Info: info})
	case errors.Is(err, base.ErrNotFound):
		s.remember(ctx, key, &Entry{Exists: false})
	}
	return info, err
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if e, ok := s.lookup(ctx, key); ok {
		return e.Exists, nil
	}

	exists, err := s.Store.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	s.remember(ctx, key, &Entry{Exists: exists})
	return exists, nil
}

// Upload invalidates the key once the backend accepted the object
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	err := s.Store.Upload(ctx, key, r, size, contentType)
	if ierr := s.cache.Invalidate(ctx, s.cacheKey(key)); ierr != nil {
		s.log.Warn("stat cache invalidation failed", map[string]interface{}{"key": key, "error": ierr.Error()})
	}
	return err
}

var _ sdk.Store = (*Store)(nil)
