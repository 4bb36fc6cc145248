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

/*
Package base defines the wagon contract: the fixed set of operations a
deployment tool uses to move artifacts to and from a remote repository.

# Wagon Interface

	type Wagon interface {
	    Connect(ctx context.Context, repo *Repository, opts ...ConnectOption) error
	    Disconnect(ctx context.Context) error
	    Get(ctx context.Context, resource, destination string) error
	    Put(ctx context.Context, source, destination string) error
	    ResourceExists(ctx context.Context, resource string) (bool, error)
	    GetFileList(ctx context.Context, destinationDir string) ([]string, error)
	    ...
	}

Connect takes optional authentication and proxy settings:

	err := w.Connect(ctx, repo,
	    base.WithAuthentication(&base.AuthenticationInfo{UserName: "account", Password: key}),
	    base.WithProxy(&base.ProxyInfo{Host: "proxy.local", Port: 3128}),
	)

WithProxy and WithProxyProvider are mutually exclusive.

# Repositories

Repositories are addressed by URL:

	azureblob://<account>/<container>[/<basedir>]
	s3://<bucket>[/<basedir>]
	gs://<bucket>[/<basedir>]
	mem://<name>[/<basedir>]

Query parameters (endpoint, sas_token, emulated, ...) are exposed through
Repository.Parameters and interpreted by the backend.

# Errors

Every failed operation returns a *WagonError whose Kind is one of
ErrTransferFailed, ErrResourceDoesNotExist, ErrAuthorization, ErrConnection,
ErrAuthentication or ErrNotConnected:

	exists, err := w.ResourceExists(ctx, "org/acme/app/1.0/app-1.0.jar")
	if errors.Is(err, base.ErrTransferFailed) {
	    // err carries the resource path and the underlying cause
	}
*/
package base
