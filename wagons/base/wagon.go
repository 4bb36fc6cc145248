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
	"context"
	"errors"
	"time"
)

// Default timeouts applied when none (or a non-positive value) is configured.
const (
	DefaultConnectionTimeout = 60 * time.Second
	DefaultReadTimeout       = 1800 * time.Second
)

// Wagon is the transfer plugin contract a deployment tool drives to move
// artifacts to and from a remote repository.
type Wagon interface {
	// Lifecycle
	Connect(ctx context.Context, repo *Repository, opts ...ConnectOption) error
	OpenConnection(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Repository() *Repository

	// Transfers
	Get(ctx context.Context, resource, destination string) error
	GetIfNewer(ctx context.Context, resource, destination string, timestamp time.Time) (bool, error)
	Put(ctx context.Context, source, destination string) error
	PutDirectory(ctx context.Context, sourceDir, destinationDir string) error
	ResourceExists(ctx context.Context, resource string) (bool, error)
	GetFileList(ctx context.Context, destinationDir string) ([]string, error)
	SupportsDirectoryCopy() bool

	// Timeouts
	SetTimeout(d time.Duration)
	Timeout() time.Duration
	SetReadTimeout(d time.Duration)
	ReadTimeout() time.Duration

	// Listeners
	AddSessionListener(l SessionListener)
	RemoveSessionListener(l SessionListener)
	HasSessionListener(l SessionListener) bool
	AddTransferListener(l TransferListener)
	RemoveTransferListener(l TransferListener)
	HasTransferListener(l TransferListener) bool

	IsInteractive() bool
	SetInteractive(interactive bool)

	// Metadata
	Name() string // Repository id, or the wagon type before connect
	Type() string // Protocol: azureblob, s3, gs, mem
}

// ConnectOptions collects the optional arguments of Connect
type ConnectOptions struct {
	Authentication *AuthenticationInfo
	Proxy          *ProxyInfo
	ProxyProvider  ProxyInfoProvider
}

// ConnectOption configures a Connect call
type ConnectOption func(*ConnectOptions)

// WithAuthentication supplies credentials for the repository
func WithAuthentication(auth *AuthenticationInfo) ConnectOption {
	return func(o *ConnectOptions) {
		o.Authentication = auth
	}
}

// WithProxy routes traffic through a fixed proxy
func WithProxy(proxy *ProxyInfo) ConnectOption {
	return func(o *ConnectOptions) {
		o.Proxy = proxy
	}
}

// WithProxyProvider resolves the proxy per protocol at connect time
func WithProxyProvider(provider ProxyInfoProvider) ConnectOption {
	return func(o *ConnectOptions) {
		o.ProxyProvider = provider
	}
}

// ErrConflictingProxy is returned when both WithProxy and WithProxyProvider are given.
var ErrConflictingProxy = errors.New("proxy and proxy provider are mutually exclusive")

// ApplyConnectOptions folds opts into a ConnectOptions and validates them
func ApplyConnectOptions(opts ...ConnectOption) (*ConnectOptions, error) {
	o := &ConnectOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.Proxy != nil && o.ProxyProvider != nil {
		return nil, ErrConflictingProxy
	}
	return o, nil
}

// ResolveProxy returns the proxy to use for protocol, if any
func (o *ConnectOptions) ResolveProxy(protocol string) *ProxyInfo {
	if o.Proxy != nil {
		return o.Proxy
	}
	if o.ProxyProvider != nil {
		return o.ProxyProvider.ProxyInfo(protocol)
	}
	return nil
}
