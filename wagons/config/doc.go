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

// Package config loads repository definitions for wagons.
//
// Repositories are described in a YAML file whose values may reference
// environment variables as ${VAR}, $VAR or ${VAR:-default}. Credentials can
// be inline, expanded from the environment, or resolved from a secrets
// provider through secret_ref. LoadFromEnv builds a single repository from
// environment variables for scripts and integration tests.
package config
