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
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Supported repository protocols
const (
	ProtocolAzureBlob = "azureblob"
	ProtocolS3        = "s3"
	ProtocolGCS       = "gs"
	ProtocolMemory    = "mem"
)

// KnownProtocols lists every protocol a repository URL may use
var KnownProtocols = []string{ProtocolAzureBlob, ProtocolS3, ProtocolGCS, ProtocolMemory}

// secretParameters are redacted by String, RedactedURL and MarshalJSON
var secretParameters = map[string]bool{
	"sas_token":         true,
	"connection_string": true,
	"credentials_json":  true,
}

// Repository describes a remote artifact repository
type Repository struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Basedir    string            `json:"basedir"`    // Path below the host, without leading or trailing slash
	Parameters map[string]string `json:"parameters"` // Query parameters of the URL

	protocol string
	host     string
}

// ParseRepository parses a repository URL such as
// azureblob://account/container/base or s3://bucket/base.
func ParseRepository(id, rawURL string) (*Repository, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid repository url %q: %w", rawURL, err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("repository url %q has no protocol", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("repository url %q has no host", rawURL)
	}

	protocol := strings.ToLower(u.Scheme)
	if !IsKnownProtocol(protocol) {
		return nil, fmt.Errorf("unsupported repository protocol %q", protocol)
	}

	params := make(map[string]string)
	for k, v := range u.Query() {
		if len(v) > 0 {
			params[k] = v[len(v)-1]
		}
	}

	repo := &Repository{
		ID:         id,
		URL:        rawURL,
		Basedir:    strings.Trim(u.Path, "/"),
		Parameters: params,
		protocol:   protocol,
		host:       u.Host,
	}

	if protocol == ProtocolAzureBlob && repo.Basedir == "" {
		return nil, fmt.Errorf("repository url %q has no container", rawURL)
	}

	return repo, nil
}

// IsKnownProtocol reports whether protocol is supported
func IsKnownProtocol(protocol string) bool {
	for _, p := range KnownProtocols {
		if p == protocol {
			return true
		}
	}
	return false
}

// Protocol returns the URL scheme
func (r *Repository) Protocol() string {
	return r.protocol
}

// Host returns the first authority component: account, bucket or store name
func (r *Repository) Host() string {
	return r.host
}

// Parameter returns a URL parameter or def when absent
func (r *Repository) Parameter(key, def string) string {
	if v, ok := r.Parameters[key]; ok && v != "" {
		return v
	}
	return def
}

// BoolParameter interprets a parameter as a boolean flag
func (r *Repository) BoolParameter(key string) bool {
	switch strings.ToLower(r.Parameters[key]) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

// SplitBasedir returns the first basedir segment and the remainder. Azure
// repositories carry the container name as the first segment.
func (r *Repository) SplitBasedir() (string, string) {
	head, rest, _ := strings.Cut(r.Basedir, "/")
	return head, rest
}

// RedactedURL renders the repository URL with secret parameters masked
func (r *Repository) RedactedURL() string {
	u := r.protocol + "://" + r.host
	if r.Basedir != "" {
		u += "/" + r.Basedir
	}
	params := r.redactedParameters()
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+params[k])
		}
		u += "?" + strings.Join(parts, "&")
	}
	return u
}

func (r *Repository) redactedParameters() map[string]string {
	if len(r.Parameters) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Parameters))
	for k, v := range r.Parameters {
		if secretParameters[k] {
			v = "****"
		}
		out[k] = v
	}
	return out
}

// String renders the repository with secret parameters redacted
func (r *Repository) String() string {
	if r.ID == "" {
		return r.RedactedURL()
	}
	return r.ID + " (" + r.RedactedURL() + ")"
}

// MarshalJSON encodes the repository with secret parameters redacted in
// both the URL and the parameter map.
func (r Repository) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID         string            `json:"id"`
		URL        string            `json:"url"`
		Basedir    string            `json:"basedir"`
		Parameters map[string]string `json:"parameters,omitempty"`
	}{
		ID:         r.ID,
		URL:        r.RedactedURL(),
		Basedir:    r.Basedir,
		Parameters: r.redactedParameters(),
	})
}
