// Copyright 2025 The blobwagon Authors
// SPDX-License-Identifier: Apache-2.0

package base

import (
	"errors"
	"strings"
	"testing"
)

func TestAuthenticationInfo_StringHidesSecrets(t *testing.T) {
	auth := &AuthenticationInfo{UserName: "acct", Password: "s3cr3t", Passphrase: "p"}
	s := auth.String()
	if strings.Contains(s, "s3cr3t") {
		t.Errorf("String() leaked password: %s", s)
	}
	if !strings.Contains(s, "acct") {
		t.Errorf("String() should contain the user name: %s", s)
	}

	var nilAuth *AuthenticationInfo
	if nilAuth.String() != "<nil>" {
		t.Error("nil AuthenticationInfo should render as <nil>")
	}
}

func TestProxyInfo_URL(t *testing.T) {
	tests := []struct {
		name  string
		proxy ProxyInfo
		want  string
	}{
		{"default scheme", ProxyInfo{Host: "proxy.local", Port: 3128}, "http://proxy.local:3128"},
		{"socks", ProxyInfo{Type: "SOCKS5", Host: "proxy.local", Port: 1080}, "socks5://proxy.local:1080"},
		{"credentials", ProxyInfo{Host: "proxy.local", Port: 8080, UserName: "u", Password: "p"}, "http://u:p@proxy.local:8080"},
		{"no port", ProxyInfo{Host: "proxy.local"}, "http://proxy.local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.proxy.URL().String(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProxyInfo_Bypass(t *testing.T) {
	p := &ProxyInfo{Host: "proxy", NonProxyHosts: "localhost | *.internal|127.0.0.1"}

	tests := []struct {
		host string
		want bool
	}{
		{"localhost", true},
		{"LOCALHOST:10000", true},
		{"blob.internal", true},
		{"a.b.internal", true},
		{"127.0.0.1:10000", true},
		{"acct.blob.core.windows.net", false},
		{"internal", false},
	}

	for _, tt := range tests {
		if got := p.Bypass(tt.host); got != tt.want {
			t.Errorf("Bypass(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}

	if (&ProxyInfo{}).Bypass("localhost") {
		t.Error("empty NonProxyHosts should never bypass")
	}
}

func TestApplyConnectOptions(t *testing.T) {
	auth := &AuthenticationInfo{UserName: "acct"}
	proxy := &ProxyInfo{Host: "proxy", Port: 3128}
	provider := ProxyInfoProviderFunc(func(protocol string) *ProxyInfo {
		if protocol == ProtocolAzureBlob {
			return proxy
		}
		return nil
	})

	t.Run("none", func(t *testing.T) {
		o, err := ApplyConnectOptions()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if o.Authentication != nil || o.ResolveProxy(ProtocolAzureBlob) != nil {
			t.Error("expected empty options")
		}
	})

	t.Run("auth and proxy", func(t *testing.T) {
		o, err := ApplyConnectOptions(WithAuthentication(auth), WithProxy(proxy))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if o.Authentication != auth {
			t.Error("authentication not applied")
		}
		if o.ResolveProxy(ProtocolS3) != proxy {
			t.Error("fixed proxy applies to every protocol")
		}
	})

	t.Run("auth and provider", func(t *testing.T) {
		o, err := ApplyConnectOptions(WithAuthentication(auth), WithProxyProvider(provider))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if o.ResolveProxy(ProtocolAzureBlob) != proxy {
			t.Error("provider should resolve the azure proxy")
		}
		if o.ResolveProxy(ProtocolS3) != nil {
			t.Error("provider returns no proxy for s3")
		}
	})

	t.Run("conflicting proxies", func(t *testing.T) {
		_, err := ApplyConnectOptions(WithProxy(proxy), WithProxyProvider(provider))
		if !errors.Is(err, ErrConflictingProxy) {
			t.Errorf("expected ErrConflictingProxy, got %v", err)
		}
	})
}
