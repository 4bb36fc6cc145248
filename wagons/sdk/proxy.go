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
	"net/http"
	"net/url"

	"github.com/carlosmiranda/blobwagon/wagons/base"
)

// NewProxyHTTPClient returns an HTTP client that sends requests through
// proxy, except for hosts matching its non-proxy patterns. A nil or empty
// proxy yields a client on a clone of the default transport.
func NewProxyHTTPClient(proxy *base.ProxyInfo) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil && proxy.Host != "" {
		proxyURL := proxy.URL()
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			if proxy.Bypass(req.URL.Host) {
				return nil, nil
			}
			return proxyURL, nil
		}
	}
	return &http.Client{Transport: transport}
}
