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
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// AuthenticationInfo carries repository credentials. For Azure the user name
// is the storage account and the password the account key.
type AuthenticationInfo struct {
	UserName   string `json:"username"`
	Password   string `json:"-"`
	Passphrase string `json:"-"`
	PrivateKey string `json:"-"`
}

func (a *AuthenticationInfo) String() string {
	if a == nil {
		return "<nil>"
	}
	return fmt.Sprintf("AuthenticationInfo{UserName: %q, Password: %s}", a.UserName, mask(a.Password))
}

// ProxyInfo describes an outbound proxy
type ProxyInfo struct {
	Type          string `json:"type" yaml:"type"` // http, https or socks5
	Host          string `json:"host" yaml:"host"`
	Port          int    `json:"port" yaml:"port"`
	UserName      string `json:"username" yaml:"username"`
	Password      string `json:"-" yaml:"password"`
	NonProxyHosts string `json:"non_proxy_hosts" yaml:"non_proxy_hosts"` // "|" separated, "*" wildcards
}

// URL builds the proxy URL, including credentials when set
func (p *ProxyInfo) URL() *url.URL {
	scheme := strings.ToLower(p.Type)
	if scheme == "" {
		scheme = "http"
	}
	host := p.Host
	if p.Port > 0 {
		host += ":" + strconv.Itoa(p.Port)
	}
	u := &url.URL{Scheme: scheme, Host: host}
	if p.UserName != "" {
		u.User = url.UserPassword(p.UserName, p.Password)
	}
	return u
}

// Bypass reports whether host matches one of the non-proxy host patterns
func (p *ProxyInfo) Bypass(host string) bool {
	if p.NonProxyHosts == "" {
		return false
	}
	host = strings.ToLower(host)
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	for _, pattern := range strings.Split(p.NonProxyHosts, "|") {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if ok, err := path.Match(pattern, host); err == nil && ok {
			return true
		}
	}
	return false
}

func (p *ProxyInfo) String() string {
	return fmt.Sprintf("ProxyInfo{Type: %q, Host: %q, Port: %d, UserName: %q, Password: %s}",
		p.Type, p.Host, p.Port, p.UserName, mask(p.Password))
}

// ProxyInfoProvider resolves a proxy for a protocol
type ProxyInfoProvider interface {
	ProxyInfo(protocol string) *ProxyInfo
}

// ProxyInfoProviderFunc adapts a function to ProxyInfoProvider
type ProxyInfoProviderFunc func(protocol string) *ProxyInfo

func (f ProxyInfoProviderFunc) ProxyInfo(protocol string) *ProxyInfo {
	return f(protocol)
}

func mask(secret string) string {
	if secret == "" {
		return `""`
	}
	return "****"
}
