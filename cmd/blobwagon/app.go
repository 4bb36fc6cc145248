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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/carlosmiranda/blobwagon/shared/logger"
	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/cache"
	"github.com/carlosmiranda/blobwagon/wagons/config"
	"github.com/carlosmiranda/blobwagon/wagons/registry"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// app holds what the commands share
type app struct {
	v         *viper.Viper
	file      *config.File
	registry  *registry.Registry
	collector *sdk.Collector
	redis     *cache.RedisStatCache
	log       *logger.Logger
}

// setup configures logging and loads the repositories file
func (a *app) setup() error {
	if path := a.v.GetString("config"); path != "" {
		f, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		a.file = f
	}

	level, err := logger.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	format := logger.Format(a.v.GetString("log-format"))
	if a.file != nil {
		if a.file.Logging.Level != "" && !a.v.IsSet("log-level") {
			if level, err = logger.ParseLevel(a.file.Logging.Level); err != nil {
				return err
			}
		}
		if a.file.Logging.Format != "" && !a.v.IsSet("log-format") {
			format = logger.Format(a.file.Logging.Format)
		}
	}
	if err := logger.Configure(logger.Config{Level: level, Format: format}); err != nil {
		return err
	}
	a.log = logger.New("cli")

	a.registry = registry.New()
	a.collector = sdk.NewCollector("blobwagon")
	a.registry.SetCollector(a.collector)
	return nil
}

// statCache builds the cache named in the repositories file
func (a *app) statCache(ctx context.Context) (cache.StatCache, error) {
	if a.file == nil {
		return nil, nil
	}
	ttl := time.Duration(a.file.Cache.TTLMs) * time.Millisecond
	switch a.file.Cache.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return cache.NewMemoryStatCache(ttl), nil
	case "redis":
		c, err := cache.NewRedisStatCache(ctx, a.file.Cache.RedisURL, cache.DefaultKeyPrefix, ttl)
		if err != nil {
			return nil, err
		}
		a.redis = c
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache type '%s'", a.file.Cache.Type)
	}
}

func (a *app) secrets(ctx context.Context) (config.SecretsProvider, error) {
	switch p := a.v.GetString("secrets"); p {
	case "", "none":
		return nil, nil
	case "env":
		return config.EnvSecretsProvider{}, nil
	case "aws":
		return config.NewAWSSecretsManager(ctx, config.AWSSecretsManagerOptions{Logger: a.log})
	default:
		return nil, fmt.Errorf("unknown secrets provider '%s'", p)
	}
}

// settings resolves the repository to use: --url first, then the
// repositories file, then the STORAGE_* environment.
func (a *app) settings(ctx context.Context, id string) (*config.Settings, error) {
	var s *config.Settings
	switch {
	case a.v.GetString("url") != "":
		repo, err := base.ParseRepository(id, a.v.GetString("url"))
		if err != nil {
			return nil, err
		}
		s = &config.Settings{Repository: repo, MaxRetries: -1}
	case a.file != nil:
		secrets, err := a.secrets(ctx)
		if err != nil {
			return nil, err
		}
		if s, err = a.file.Settings(ctx, id, secrets); err != nil {
			return nil, err
		}
	default:
		var err error
		if s, err = config.LoadFromEnv(id); err != nil {
			return nil, err
		}
	}

	if user := a.v.GetString("username"); user != "" {
		if s.Auth == nil {
			s.Auth = &base.AuthenticationInfo{}
		}
		s.Auth.UserName = user
	}
	if pass := a.v.GetString("password"); pass != "" {
		if s.Auth == nil {
			s.Auth = &base.AuthenticationInfo{}
		}
		s.Auth.Password = pass
	}
	if d := a.v.GetDuration("timeout"); d > 0 {
		s.Timeout = d
	}
	if d := a.v.GetDuration("read-timeout"); d > 0 {
		s.ReadTimeout = d
	}
	return s, nil
}

// wagon opens the repository selected by the flags
func (a *app) wagon(ctx context.Context) (sdk.StreamingWagon, error) {
	c, err := a.statCache(ctx)
	if err != nil {
		return nil, err
	}
	if c != nil {
		a.registry.SetStatCache(c)
	}

	s, err := a.settings(ctx, a.v.GetString("repository"))
	if err != nil {
		return nil, err
	}
	w, err := a.registry.Add(ctx, s)
	if err != nil {
		return nil, err
	}
	sw, ok := w.(sdk.StreamingWagon)
	if !ok {
		return nil, fmt.Errorf("wagon for '%s' does not support streaming", s.Repository.Protocol())
	}
	return sw, nil
}

func (a *app) close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	if a.registry != nil {
		err = a.registry.Close(ctx)
	}
	if a.redis != nil {
		if cerr := a.redis.Close(); err == nil {
			err = cerr
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
	return err
}
