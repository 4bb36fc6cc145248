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
	"time"

	"github.com/carlosmiranda/blobwagon/wagons/base"
)

// Listener values are compared by identity, so they must be comparable
// (typically pointers).

// AddSessionListener registers l; nil and duplicates are ignored
func (w *BaseWagon) AddSessionListener(l base.SessionListener) {
	if l == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, existing := range w.sessionListeners {
		if existing == l {
			return
		}
	}
	w.sessionListeners = append(w.sessionListeners, l)
}

// RemoveSessionListener unregisters l if present
func (w *BaseWagon) RemoveSessionListener(l base.SessionListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.sessionListeners {
		if existing == l {
			w.sessionListeners = append(w.sessionListeners[:i:i], w.sessionListeners[i+1:]...)
			return
		}
	}
}

// HasSessionListener reports whether l is registered
func (w *BaseWagon) HasSessionListener(l base.SessionListener) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, existing := range w.sessionListeners {
		if existing == l {
			return true
		}
	}
	return false
}

// AddTransferListener registers l; nil and duplicates are ignored
func (w *BaseWagon) AddTransferListener(l base.TransferListener) {
	if l == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, existing := range w.transferListeners {
		if existing == l {
			return
		}
	}
	w.transferListeners = append(w.transferListeners, l)
}

// RemoveTransferListener unregisters l if present
func (w *BaseWagon) RemoveTransferListener(l base.TransferListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.transferListeners {
		if existing == l {
			w.transferListeners = append(w.transferListeners[:i:i], w.transferListeners[i+1:]...)
			return
		}
	}
}

// HasTransferListener reports whether l is registered
func (w *BaseWagon) HasTransferListener(l base.TransferListener) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, existing := range w.transferListeners {
		if existing == l {
			return true
		}
	}
	return false
}

// fireSession delivers synchronously, in registration order, without holding mu
func (w *BaseWagon) fireSession(t base.SessionEventType, err error) {
	w.mu.RLock()
	listeners := append([]base.SessionListener(nil), w.sessionListeners...)
	ev := base.SessionEvent{
		Type:       t,
		Wagon:      w.nameFor(w.repo),
		Repository: w.repo,
		Err:        err,
		Time:       time.Now(),
	}
	w.mu.RUnlock()

	for _, l := range listeners {
		l.HandleSessionEvent(ev)
	}
}

func (w *BaseWagon) transferListenersSnapshot() []base.TransferListener {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]base.TransferListener(nil), w.transferListeners...)
}

// transferNotifier fans a single transfer's events out to the listeners
// registered when the transfer was initiated.
type transferNotifier struct {
	listeners []base.TransferListener
	ev        base.TransferEvent
}

func (w *BaseWagon) newTransfer(name string, req base.RequestType, resource, localFile string, size int64) *transferNotifier {
	return &transferNotifier{
		listeners: w.transferListenersSnapshot(),
		ev: base.TransferEvent{
			RequestType: req,
			Wagon:       name,
			Resource:    resource,
			LocalFile:   localFile,
			Size:        size,
		},
	}
}

func (n *transferNotifier) event(t base.TransferEventType, err error) base.TransferEvent {
	ev := n.ev
	ev.Type = t
	ev.Err = err
	ev.Time = time.Now()
	return ev
}

func (n *transferNotifier) initiated() {
	ev := n.event(base.TransferInitiated, nil)
	for _, l := range n.listeners {
		l.TransferInitiated(ev)
	}
}

func (n *transferNotifier) started() {
	ev := n.event(base.TransferStarted, nil)
	for _, l := range n.listeners {
		l.TransferStarted(ev)
	}
}

func (n *transferNotifier) progress(bytes int) {
	if len(n.listeners) == 0 {
		return
	}
	ev := n.event(base.TransferProgress, nil)
	for _, l := range n.listeners {
		l.TransferProgress(ev, bytes)
	}
}

func (n *transferNotifier) completed(size int64) {
	n.ev.Size = size
	ev := n.event(base.TransferCompleted, nil)
	for _, l := range n.listeners {
		l.TransferCompleted(ev)
	}
}

func (n *transferNotifier) failed(err error) {
	ev := n.event(base.TransferError, err)
	for _, l := range n.listeners {
		l.TransferError(ev)
	}
}
