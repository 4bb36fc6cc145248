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

// Package gateway serves configured repositories over plain HTTP.
//
// Routes:
//
//	GET  /health
//	GET  /metrics
//	GET  /repositories/{id}/            list the repository root
//	GET  /repositories/{id}/{dir}/      list a directory
//	GET  /repositories/{id}/{path}      download
//	HEAD /repositories/{id}/{path}      existence and metadata
//	PUT  /repositories/{id}/{path}      upload
//
// When a JWT secret is configured every repository route requires an HS256
// bearer token. The "repositories" claim lists the ids the token may read
// ("*" for all) and the "write" claim allows uploads.
package gateway
