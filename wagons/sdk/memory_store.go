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
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/carlosmiranda/blobwagon/wagons/base"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
	etag        string
}

// MemoryStore is an in-process Store. It backs mem:// repositories and tests.
type MemoryStore struct {
	objects map[string]*memoryObject
	now     func() time.Time
	closed  bool
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*memoryObject),
		now:     time.Now,
	}
}

// SetClock overrides the modification time source
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// PutObject stores data directly, bypassing Upload
func (m *MemoryStore) PutObject(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(key, data, ContentTypeFor(key))
}

func (m *MemoryStore) put(key string, data []byte, contentType string) {
	sum := md5.Sum(data)
	m.objects[key] = &memoryObject{
		data:        data,
		contentType: contentType,
		modified:    m.now(),
		etag:        `"` + hex.EncodeToString(sum[:]) + `"`,
	}
}

// Object returns a copy of the stored bytes
func (m *MemoryStore) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Keys returns all keys in sorted order
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errStoreClosed
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", base.ErrNotFound, key)
	}
	return m.info(key, obj), nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, errStoreClosed
	}
	_, ok := m.objects[key]
	return ok, nil
}

func (m *MemoryStore) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return 0, errStoreClosed
	}
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", base.ErrNotFound, key)
	}
	return io.Copy(w, bytes.NewReader(obj.data))
}

func (m *MemoryStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("short upload for %s: got %d bytes, want %d", key, len(data), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStoreClosed
	}
	m.put(key, data, contentType)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errStoreClosed
	}
	var out []ObjectInfo
	for k, obj := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, *m.info(k, obj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close is a no-op; objects survive so a wagon can reconnect to the same store.
func (m *MemoryStore) Close() error {
	return nil
}

// Shutdown makes every further call fail. Used to simulate a dead backend.
func (m *MemoryStore) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *MemoryStore) info(key string, obj *memoryObject) *ObjectInfo {
	return &ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
		ETag:         obj.etag,
		ContentType:  obj.contentType,
	}
}

var errStoreClosed = errors.New("memory store: connection refused")

var _ Store = (*MemoryStore)(nil)

var (
	namedStoresMu sync.Mutex
	namedStores   = make(map[string]*MemoryStore)
)

// NamedMemoryStore returns the process-wide store for a mem:// host,
// creating it on first use.
func NamedMemoryStore(name string) *MemoryStore {
	namedStoresMu.Lock()
	defer namedStoresMu.Unlock()
	s, ok := namedStores[name]
	if !ok {
		s = NewMemoryStore()
		namedStores[name] = s
	}
	return s
}

// MemoryDialer opens mem://<name>[/<basedir>] repositories
func MemoryDialer(ctx context.Context, repo *base.Repository, _ *base.AuthenticationInfo, _ *base.ProxyInfo) (Store, error) {
	if repo.Protocol() != base.ProtocolMemory {
		return nil, fmt.Errorf("memory wagon cannot open %s repositories", repo.Protocol())
	}
	return NewPrefixedStore(NamedMemoryStore(repo.Host()), repo.Basedir), nil
}

// NewMemoryWagon returns an unconnected wagon for mem:// repositories
func NewMemoryWagon() *BaseWagon {
	return NewBaseWagon(base.ProtocolMemory, MemoryDialer)
}
