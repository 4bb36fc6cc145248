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

// Package gcs implements the wagon contract for Google Cloud Storage.
//
// Repository URLs have the form gs://<bucket>[/<basedir>]. Credentials come
// from the credentials_file or credentials_json parameters, the
// authentication private key (a service account JSON document), or
// Application Default Credentials. The endpoint parameter targets an
// emulator; anonymous=true disables authentication. Proxies are taken from
// the standard HTTPS_PROXY environment.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// Repository parameters
const (
	ParamCredentialsFile = "credentials_file"
	ParamCredentialsJSON = "credentials_json"
	ParamEndpoint        = "endpoint"
	ParamAnonymous       = "anonymous"
)

// Wagon transfers artifacts to and from a GCS bucket
type Wagon struct {
	*sdk.BaseWagon
}

// New returns an unconnected GCS wagon
func New() *Wagon {
	return &Wagon{BaseWagon: sdk.NewBaseWagon(base.ProtocolGCS, dial)}
}

// NewWagon wraps an existing bucket. The wagon is returned connected to
// gs://<name>[/<basedir>].
func NewWagon(bucket Bucket, name, basedir string) (*Wagon, error) {
	if bucket == nil || name == "" {
		return nil, base.NewWagonError(base.ProtocolGCS, "NewWagon", base.ErrConnection, "bucket and name are required", nil)
	}
	basedir = strings.Trim(basedir, "/")
	raw := fmt.Sprintf("%s://%s", base.ProtocolGCS, name)
	if basedir != "" {
		raw += "/" + basedir
	}
	repo, err := base.ParseRepository(name, raw)
	if err != nil {
		return nil, base.NewWagonError(base.ProtocolGCS, "NewWagon", base.ErrConnection, "invalid bucket", err)
	}
	store := sdk.NewPrefixedStore(NewStore(bucket, nil), basedir)
	return &Wagon{BaseWagon: sdk.NewBaseWagonWithStore(base.ProtocolGCS, repo, store)}, nil
}

// ClientOptions derives the storage client options for repo
func ClientOptions(repo *base.Repository, auth *base.AuthenticationInfo) []option.ClientOption {
	var opts []option.ClientOption

	switch {
	case repo.BoolParameter(ParamAnonymous):
		opts = append(opts, option.WithoutAuthentication())
	case repo.Parameter(ParamCredentialsFile, "") != "":
		opts = append(opts, option.WithCredentialsFile(repo.Parameter(ParamCredentialsFile, "")))
	case repo.Parameter(ParamCredentialsJSON, "") != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(repo.Parameter(ParamCredentialsJSON, ""))))
	case auth != nil && auth.PrivateKey != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(auth.PrivateKey)))
	}

	if endpoint := repo.Parameter(ParamEndpoint, ""); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

func dial(ctx context.Context, repo *base.Repository, auth *base.AuthenticationInfo, _ *base.ProxyInfo) (sdk.Store, error) {
	client, err := storage.NewClient(ctx, ClientOptions(repo, auth)...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCS client: %w", base.ErrAuthentication, err)
	}

	bucket := client.Bucket(repo.Host())
	if _, err := bucket.Attrs(ctx); err != nil {
		_ = client.Close()
		switch {
		case isAuthError(err):
			return nil, fmt.Errorf("%w: bucket %s: %w", base.ErrAuthentication, repo.Host(), err)
		default:
			return nil, fmt.Errorf("failed to verify bucket %s: %w", repo.Host(), err)
		}
	}

	return sdk.NewPrefixedStore(NewStore(NewBucket(bucket), client), repo.Basedir), nil
}

var _ base.Wagon = (*Wagon)(nil)
