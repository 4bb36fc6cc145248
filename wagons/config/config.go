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

package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carlosmiranda/blobwagon/wagons/base"
)

// File is the root of a configuration file
type File struct {
	Version      string                      `yaml:"version"`
	Logging      LoggingConfig               `yaml:"logging,omitempty"`
	Cache        CacheConfig                 `yaml:"cache,omitempty"`
	Gateway      GatewayConfig               `yaml:"gateway,omitempty"`
	Repositories map[string]RepositoryConfig `yaml:"repositories,omitempty"`
}

// LoggingConfig selects the log level and encoding
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// CacheConfig selects the stat cache shared by all repositories
type CacheConfig struct {
	Type     string `yaml:"type,omitempty"` // none, memory or redis
	RedisURL string `yaml:"redis_url,omitempty"`
	TTLMs    int    `yaml:"ttl_ms,omitempty"`
}

// GatewayConfig configures the HTTP gateway
type GatewayConfig struct {
	Listen      string   `yaml:"listen,omitempty"`
	JWTSecret   string   `yaml:"jwt_secret,omitempty"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// RepositoryConfig describes one repository in the file
type RepositoryConfig struct {
	URL           string            `yaml:"url"`
	Enabled       bool              `yaml:"enabled"`
	Username      string            `yaml:"username,omitempty"`
	Password      string            `yaml:"password,omitempty"`
	PrivateKey    string            `yaml:"private_key,omitempty"`
	SecretRef     string            `yaml:"secret_ref,omitempty"`
	Parameters    map[string]string `yaml:"parameters,omitempty"`
	TimeoutMs     int               `yaml:"timeout_ms,omitempty"`
	ReadTimeoutMs int               `yaml:"read_timeout_ms,omitempty"`
	MaxRetries    *int              `yaml:"max_retries,omitempty"`
	RateLimit     float64           `yaml:"rate_limit,omitempty"`
	Concurrency   int               `yaml:"concurrency,omitempty"`
	Proxy         *base.ProxyInfo   `yaml:"proxy,omitempty"`
}

// Settings is everything needed to open one repository
type Settings struct {
	Repository  *base.Repository
	Auth        *base.AuthenticationInfo
	Proxy       *base.ProxyInfo
	Timeout     time.Duration
	ReadTimeout time.Duration
	MaxRetries  int // negative keeps the wagon default
	RateLimit   float64
	Concurrency int
}

// LoadFile reads, expands and validates a configuration file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands environment references in data and decodes it
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := ValidateConfigFile(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR}, ${VAR:-default} and $VAR. Undefined
// variables without a default expand to the empty string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		def := ""
		if idx := strings.Index(name, ":-"); idx != -1 {
			def = name[idx+2:]
			name = name[:idx]
		}

		if v := os.Getenv(name); v != "" {
			return v
		}
		return def
	})
}

// ValidateConfigFile checks the structure of a configuration file
func ValidateConfigFile(f *File) error {
	if f.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}

	switch f.Cache.Type {
	case "", "none", "memory":
	case "redis":
		if f.Cache.RedisURL == "" {
			return fmt.Errorf("redis cache requires redis_url")
		}
	default:
		return fmt.Errorf("invalid cache type '%s'", f.Cache.Type)
	}
	if f.Cache.TTLMs < 0 {
		return fmt.Errorf("cache ttl_ms must not be negative")
	}

	for id, r := range f.Repositories {
		if r.URL == "" {
			return fmt.Errorf("repository '%s' must specify a url", id)
		}
		if _, err := base.ParseRepository(id, r.URL); err != nil {
			return fmt.Errorf("repository '%s': %w", id, err)
		}
		if r.TimeoutMs < 0 || r.ReadTimeoutMs < 0 {
			return fmt.Errorf("repository '%s' timeouts must not be negative", id)
		}
		if r.MaxRetries != nil && *r.MaxRetries < 0 {
			return fmt.Errorf("repository '%s' max_retries must not be negative", id)
		}
		if r.RateLimit < 0 || r.Concurrency < 0 {
			return fmt.Errorf("repository '%s' rate_limit and concurrency must not be negative", id)
		}
	}
	return nil
}

// EnabledRepositories returns the ids of enabled repositories, sorted
func (f *File) EnabledRepositories() []string {
	var ids []string
	for id, r := range f.Repositories {
		if r.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Settings resolves repository id. secrets may be nil when no repository
// uses secret_ref.
func (f *File) Settings(ctx context.Context, id string, secrets SecretsProvider) (*Settings, error) {
	r, ok := f.Repositories[id]
	if !ok {
		return nil, fmt.Errorf("repository '%s' is not configured", id)
	}
	if !r.Enabled {
		return nil, fmt.Errorf("repository '%s' is disabled", id)
	}

	rawURL := r.URL
	if len(r.Parameters) > 0 {
		rawURL = withParameters(rawURL, r.Parameters)
	}
	repo, err := base.ParseRepository(id, rawURL)
	if err != nil {
		return nil, fmt.Errorf("repository '%s': %w", id, err)
	}

	s := &Settings{
		Repository:  repo,
		Proxy:       r.Proxy,
		Timeout:     time.Duration(r.TimeoutMs) * time.Millisecond,
		ReadTimeout: time.Duration(r.ReadTimeoutMs) * time.Millisecond,
		MaxRetries:  -1,
		RateLimit:   r.RateLimit,
		Concurrency: r.Concurrency,
	}
	if r.MaxRetries != nil {
		s.MaxRetries = *r.MaxRetries
	}

	auth := &base.AuthenticationInfo{UserName: r.Username, Password: r.Password, PrivateKey: r.PrivateKey}
	if r.SecretRef != "" {
		if secrets == nil {
			return nil, fmt.Errorf("repository '%s' uses secret_ref but no secrets provider is configured", id)
		}
		secret, err := secrets.GetSecret(ctx, r.SecretRef)
		if err != nil {
			return nil, fmt.Errorf("repository '%s': %w", id, err)
		}
		applySecret(auth, secret)
	}
	if auth.UserName != "" || auth.Password != "" || auth.PrivateKey != "" {
		s.Auth = auth
	}
	return s, nil
}

// applySecret fills empty credential fields from a secret document
func applySecret(auth *base.AuthenticationInfo, secret map[string]string) {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v := secret[k]; v != "" {
				return v
			}
		}
		return ""
	}
	if auth.UserName == "" {
		auth.UserName = pick("username", "account_name", "access_key")
	}
	if auth.Password == "" {
		auth.Password = pick("password", "account_key", "secret_key", "value")
	}
	if auth.PrivateKey == "" {
		auth.PrivateKey = pick("private_key")
	}
}

func withParameters(rawURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(rawURL)
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	for _, k := range keys {
		sb.WriteString(sep)
		sb.WriteString(url.QueryEscape(k))
		sb.WriteString("=")
		sb.WriteString(url.QueryEscape(params[k]))
		sep = "&"
	}
	return sb.String()
}

// GenerateExampleConfigFile returns a commented example configuration
func GenerateExampleConfigFile() string {
	return `# blobwagon configuration
# Values can reference environment variables as ${VAR_NAME} or ${VAR_NAME:-default}

version: "1.0"

logging:
  level: ${BLOBWAGON_LOG_LEVEL:-INFO}
  format: json

cache:
  type: memory          # none, memory or redis
  # redis_url: redis://localhost:6379/0
  ttl_ms: 30000

gateway:
  listen: ":8080"
  # jwt_secret: ${BLOBWAGON_JWT_SECRET}
  cors_origins: ["*"]

repositories:
  releases:
    url: azureblob://myaccount/artifacts/releases
    enabled: true
    username: ${AZURE_STORAGE_ACCOUNT}
    password: ${AZURE_STORAGE_KEY}
    parameters:
      create_container: "true"
    timeout_ms: 60000
    read_timeout_ms: 1800000
    max_retries: 3

  snapshots:
    url: s3://my-bucket/snapshots
    enabled: false
    secret_ref: arn:aws:secretsmanager:us-east-1:123456789012:secret:blobwagon-s3
    parameters:
      region: us-east-1

  local:
    url: azureblob://devstoreaccount1/artifacts?emulated=true
    enabled: false
    proxy:
      host: proxy.local
      port: 3128
      non_proxy_hosts: "127.0.0.1|localhost|*.internal"
`
}
