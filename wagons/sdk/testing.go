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
	"io"
	"sync"

	"github.com/carlosmiranda/blobwagon/wagons/base"
)

// RecordingSessionListener records session events for assertions
type RecordingSessionListener struct {
	events []base.SessionEvent
	mu     sync.Mutex
}

func (r *RecordingSessionListener) HandleSessionEvent(ev base.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events
func (r *RecordingSessionListener) Events() []base.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]base.SessionEvent(nil), r.events...)
}

// Types returns the recorded event types in order
func (r *RecordingSessionListener) Types() []base.SessionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]base.SessionEventType, len(r.events))
	for i, ev := range r.events {
		types[i] = ev.Type
	}
	return types
}

// RecordingTransferListener records transfer events for assertions
type RecordingTransferListener struct {
	events        []base.TransferEvent
	progressBytes int64
	mu            sync.Mutex
}

func (r *RecordingTransferListener) record(ev base.TransferEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *RecordingTransferListener) TransferInitiated(ev base.TransferEvent) { r.record(ev) }
func (r *RecordingTransferListener) TransferStarted(ev base.TransferEvent)   { r.record(ev) }
func (r *RecordingTransferListener) TransferCompleted(ev base.TransferEvent) { r.record(ev) }
func (r *RecordingTransferListener) TransferError(ev base.TransferEvent)     { r.record(ev) }

// TransferProgress accumulates bytes instead of recording every chunk
func (r *RecordingTransferListener) TransferProgress(ev base.TransferEvent, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progressBytes += int64(n)
}

// Events returns a copy of the recorded non-progress events
func (r *RecordingTransferListener) Events() []base.TransferEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]base.TransferEvent(nil), r.events...)
}

// Types returns the recorded event types in order
func (r *RecordingTransferListener) Types() []base.TransferEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]base.TransferEventType, len(r.events))
	for i, ev := range r.events {
		types[i] = ev.Type
	}
	return types
}

// ProgressBytes returns the total reported through TransferProgress
func (r *RecordingTransferListener) ProgressBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progressBytes
}

// FailingStore wraps a Store and injects errors per operation. Calls counts
// every invocation, failing or not.
type FailingStore struct {
	Store
	StatErr     error
	ExistsErr   error
	DownloadErr error
	UploadErr   error
	ListErr     error
	CloseErr    error

	calls map[string]int
	mu    sync.Mutex
}

// NewFailingStore wraps inner; a nil inner uses an empty MemoryStore
func NewFailingStore(inner Store) *FailingStore {
	if inner == nil {
		inner = NewMemoryStore()
	}
	return &FailingStore{Store: inner, calls: make(map[string]int)}
}

func (f *FailingStore) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

// Calls returns how often op was invoked
func (f *FailingStore) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FailingStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	f.count(OpStat)
	if f.StatErr != nil {
		return nil, f.StatErr
	}
	return f.Store.Stat(ctx, key)
}

func (f *FailingStore) Exists(ctx context.Context, key string) (bool, error) {
	f.count(OpExists)
	if f.ExistsErr != nil {
		return false, f.ExistsErr
	}
	return f.Store.Exists(ctx, key)
}

func (f *FailingStore) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	f.count(OpGet)
	if f.DownloadErr != nil {
		return 0, f.DownloadErr
	}
	return f.Store.Download(ctx, key, w)
}

func (f *FailingStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	f.count(OpPut)
	if f.UploadErr != nil {
		return f.UploadErr
	}
	return f.Store.Upload(ctx, key, r, size, contentType)
}

func (f *FailingStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	f.count(OpList)
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Store.List(ctx, prefix)
}

func (f *FailingStore) Close() error {
	if f.CloseErr != nil {
		return f.CloseErr
	}
	return f.Store.Close()
}

var (
	_ base.SessionListener  = (*RecordingSessionListener)(nil)
	_ base.TransferListener = (*RecordingTransferListener)(nil)
	_ Store                 = (*FailingStore)(nil)
)
