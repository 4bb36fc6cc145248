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
	"fmt"
	"os"
	"strings"

	"github.com/carlosmiranda/blobwagon/wagons/base"
)

// Environment variables read by LoadFromEnv
const (
	EnvURL       = "BLOBWAGON_URL"
	EnvUsername  = "BLOBWAGON_USERNAME"
	EnvPassword  = "BLOBWAGON_PASSWORD"
	EnvAccount   = "STORAGE_ACCOUNT"
	EnvKey       = "STORAGE_KEY"
	EnvContainer = "STORAGE_CONTAINER"
	EnvEmulated  = "STORAGE_EMULATED"
)

// DefaultContainer is used when STORAGE_CONTAINER is unset
const DefaultContainer = "artifacts"

// lookupEnv reads STORAGE_ACCOUNT style variables, falling back to the
// dotted storage.account form.
func lookupEnv(name string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return os.Getenv(strings.ToLower(strings.Replace(name, "_", ".", 1)))
}

// LoadFromEnv builds the settings for repository id from BLOBWAGON_URL, or
// from the STORAGE_* variables for an Azure account.
func LoadFromEnv(id string) (*Settings, error) {
	if raw := os.Getenv(EnvURL); raw != "" {
		repo, err := base.ParseRepository(id, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvURL, err)
		}
		s := &Settings{Repository: repo, MaxRetries: -1}
		if user, pass := os.Getenv(EnvUsername), os.Getenv(EnvPassword); user != "" || pass != "" {
			s.Auth = &base.AuthenticationInfo{UserName: user, Password: pass}
		}
		return s, nil
	}

	account := lookupEnv(EnvAccount)
	key := lookupEnv(EnvKey)
	emulated := strings.EqualFold(lookupEnv(EnvEmulated), "true")
	container := lookupEnv(EnvContainer)
	if container == "" {
		container = DefaultContainer
	}

	switch {
	case emulated:
		if account == "" {
			account = "devstoreaccount1"
		}
		repo, err := base.ParseRepository(id, fmt.Sprintf("%s://%s/%s?emulated=true", base.ProtocolAzureBlob, account, container))
		if err != nil {
			return nil, err
		}
		return &Settings{Repository: repo, MaxRetries: -1}, nil
	case account != "" && key != "":
		repo, err := base.ParseRepository(id, fmt.Sprintf("%s://%s/%s", base.ProtocolAzureBlob, account, container))
		if err != nil {
			return nil, err
		}
		return &Settings{
			Repository: repo,
			Auth:       &base.AuthenticationInfo{UserName: account, Password: key},
			MaxRetries: -1,
		}, nil
	default:
		return nil, fmt.Errorf("no repository in environment: set %s, or %s and %s, or %s=true",
			EnvURL, EnvAccount, EnvKey, EnvEmulated)
	}
}
