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
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/carlosmiranda/blobwagon/shared/logger"
)

// SecretsProvider resolves a secret reference to its key/value document
type SecretsProvider interface {
	GetSecret(ctx context.Context, ref string) (map[string]string, error)
}

// DefaultSecretTTL is how long fetched secrets are reused
const DefaultSecretTTL = 5 * time.Minute

type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager reads secrets from AWS Secrets Manager and caches them
type AWSSecretsManager struct {
	client secretsAPI
	cache  map[string]*secretCacheEntry
	ttl    time.Duration
	now    func() time.Time
	log    *logger.Logger
	mu     sync.RWMutex
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions configures NewAWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *logger.Logger
}

// NewAWSSecretsManager creates a client from the default AWS configuration
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	var cfgOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newAWSSecretsManager(secretsmanager.NewFromConfig(cfg), opts), nil
}

func newAWSSecretsManager(client secretsAPI, opts AWSSecretsManagerOptions) *AWSSecretsManager {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultSecretTTL
	}
	log := opts.Logger
	if log == nil {
		log = logger.New("secrets")
	}
	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		now:    time.Now,
		log:    log,
	}
}

// GetSecret returns the secret's JSON document. A secret that is not a JSON
// object is returned under the "value" key.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	entry, ok := s.cache[ref]
	s.mu.RUnlock()
	if ok && s.now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(ref)})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskRef(ref), err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskRef(ref))
	}

	var value map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &value); err != nil {
		value = map[string]string{"value": *out.SecretString}
	}

	s.mu.Lock()
	s.cache[ref] = &secretCacheEntry{value: value, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	s.log.Debug("secret fetched", map[string]interface{}{"secret": maskRef(ref)})
	return value, nil
}

// InvalidateSecret drops ref from the cache
func (s *AWSSecretsManager) InvalidateSecret(ref string) {
	s.mu.Lock()
	delete(s.cache, ref)
	s.mu.Unlock()
}

// maskRef shows only the last 8 characters of a secret reference
func maskRef(ref string) string {
	if len(ref) <= 12 {
		return "***"
	}
	return "..." + ref[len(ref)-8:]
}

// LocalSecretsProvider serves secrets from memory
type LocalSecretsProvider struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
}

func NewLocalSecretsProvider() *LocalSecretsProvider {
	return &LocalSecretsProvider{secrets: make(map[string]map[string]string)}
}

func (p *LocalSecretsProvider) GetSecret(_ context.Context, ref string) (map[string]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.secrets[ref]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("secret %s not found", maskRef(ref))
}

// SetSecret stores value under ref
func (p *LocalSecretsProvider) SetSecret(ref string, value map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secrets[ref] = value
}

// EnvSecretsProvider treats the reference as an environment variable
// prefix: ref "RELEASES" reads RELEASES_USERNAME, RELEASES_PASSWORD and so on.
type EnvSecretsProvider struct{}

var envSecretFields = []string{
	"USERNAME", "PASSWORD", "PRIVATE_KEY",
	"ACCOUNT_NAME", "ACCOUNT_KEY", "ACCESS_KEY", "SECRET_KEY",
}

func (EnvSecretsProvider) GetSecret(_ context.Context, ref string) (map[string]string, error) {
	out := make(map[string]string)
	for _, field := range envSecretFields {
		if v := os.Getenv(ref + "_" + field); v != "" {
			out[strings.ToLower(field)] = v
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no credentials found for prefix %s", ref)
	}
	return out, nil
}

var (
	_ SecretsProvider = (*AWSSecretsManager)(nil)
	_ SecretsProvider = (*LocalSecretsProvider)(nil)
	_ SecretsProvider = EnvSecretsProvider{}
)
