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

package base

import "time"

// SessionEventType enumerates connection lifecycle events
type SessionEventType int

const (
	SessionOpening SessionEventType = iota
	SessionOpened
	SessionLoggedIn
	SessionLoggedOff
	SessionDisconnecting
	SessionDisconnected
	SessionConnectionRefused
	SessionError
)

func (t SessionEventType) String() string {
	switch t {
	case SessionOpening:
		return "opening"
	case SessionOpened:
		return "opened"
	case SessionLoggedIn:
		return "logged_in"
	case SessionLoggedOff:
		return "logged_off"
	case SessionDisconnecting:
		return "disconnecting"
	case SessionDisconnected:
		return "disconnected"
	case SessionConnectionRefused:
		return "connection_refused"
	case SessionError:
		return "error"
	default:
		return "unknown"
	}
}

// SessionEvent is delivered to SessionListeners
type SessionEvent struct {
	Type       SessionEventType
	Wagon      string
	Repository *Repository
	Err        error
	Time       time.Time
}

// TransferEventType enumerates transfer progress events
type TransferEventType int

const (
	TransferInitiated TransferEventType = iota
	TransferStarted
	TransferProgress
	TransferCompleted
	TransferError
)

func (t TransferEventType) String() string {
	switch t {
	case TransferInitiated:
		return "initiated"
	case TransferStarted:
		return "started"
	case TransferProgress:
		return "progress"
	case TransferCompleted:
		return "completed"
	case TransferError:
		return "error"
	default:
		return "unknown"
	}
}

// RequestType tells downloads from uploads
type RequestType int

const (
	RequestGet RequestType = iota
	RequestPut
)

func (r RequestType) String() string {
	if r == RequestPut {
		return "put"
	}
	return "get"
}

// TransferEvent is delivered to TransferListeners
type TransferEvent struct {
	Type        TransferEventType
	RequestType RequestType
	Wagon       string
	Resource    string
	LocalFile   string
	Size        int64 // -1 when unknown
	Err         error
	Time        time.Time
}

// SessionListener observes connection lifecycle events
type SessionListener interface {
	HandleSessionEvent(ev SessionEvent)
}

// TransferListener observes transfers. Progress reports the number of bytes
// moved since the previous progress call.
type TransferListener interface {
	TransferInitiated(ev TransferEvent)
	TransferStarted(ev TransferEvent)
	TransferProgress(ev TransferEvent, n int)
	TransferCompleted(ev TransferEvent)
	TransferError(ev TransferEvent)
}
