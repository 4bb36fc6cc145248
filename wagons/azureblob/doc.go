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

// Package azureblob implements the wagon contract for Azure Blob Storage.
//
// A repository URL has the form
//
//	azureblob://<account>/<container>[/<basedir>][?parameters]
//
// Credentials are taken from the connection_string or sas_token parameters,
// from a managed identity when use_managed_identity=true, or from the
// authentication info (account name and key). emulated=true targets the
// local Azurite development account.
package azureblob
