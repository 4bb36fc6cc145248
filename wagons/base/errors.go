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

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Every *WagonError carries exactly one of these and matches it
// with errors.Is.
var (
	ErrTransferFailed       = errors.New("transfer failed")
	ErrResourceDoesNotExist = errors.New("resource does not exist")
	ErrAuthorization        = errors.New("authorization failed")
	ErrConnection           = errors.New("connection failed")
	ErrAuthentication       = errors.New("authentication failed")
	ErrNotConnected         = errors.New("not connected")
)

// Store-level sentinels
var (
	ErrNotFound            = errors.New("object not found")
	ErrInvalidResourceName = errors.New("invalid resource name")
)

// WagonError represents a failed wagon operation
type WagonError struct {
	WagonName string
	Operation string
	Resource  string
	Message   string
	Kind      error
	Cause     error
}

func (e *WagonError) Error() string {
	if e.Cause != nil {
		return e.WagonName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.WagonName + "." + e.Operation + ": " + e.Message
}

func (e *WagonError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the error's kind
func (e *WagonError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NewWagonError creates a new WagonError
func NewWagonError(wagonName, operation string, kind error, message string, cause error) *WagonError {
	return &WagonError{
		WagonName: wagonName,
		Operation: operation,
		Message:   message,
		Kind:      kind,
		Cause:     cause,
	}
}

// NewResourceError creates a WagonError about a specific resource path
func NewResourceError(wagonName, operation string, kind error, resource string, cause error) *WagonError {
	var msg string
	switch kind {
	case ErrResourceDoesNotExist:
		msg = fmt.Sprintf("resource '%s' does not exist", resource)
	case ErrAuthorization:
		msg = fmt.Sprintf("not authorized to access resource '%s'", resource)
	default:
		if strings.HasPrefix(operation, "Put") {
			msg = fmt.Sprintf("failed to put resource '%s'", resource)
		} else {
			msg = fmt.Sprintf("failed to get resource '%s'", resource)
		}
	}
	return &WagonError{
		WagonName: wagonName,
		Operation: operation,
		Resource:  resource,
		Message:   msg,
		Kind:      kind,
		Cause:     cause,
	}
}

// KindOf returns the kind of err if it is (or wraps) a WagonError, otherwise nil.
func KindOf(err error) error {
	var we *WagonError
	if errors.As(err, &we) {
		return we.Kind
	}
	return nil
}
