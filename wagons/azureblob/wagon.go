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

package azureblob

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// Wagon transfers artifacts to and from an Azure Blob Storage container
type Wagon struct {
	*sdk.BaseWagon
}

// New returns an unconnected wagon that builds its container client on Connect
func New() *Wagon {
	return &Wagon{BaseWagon: sdk.NewBaseWagon(base.ProtocolAzureBlob, dial)}
}

type options struct {
	basedir string
	retry   *sdk.RetryConfig
}

// Option customizes a wagon built around an existing container client
type Option func(*options)

// WithBasedir roots every resource below dir inside the container
func WithBasedir(dir string) Option {
	return func(o *options) {
		o.basedir = strings.Trim(dir, "/")
	}
}

// WithRetryConfig replaces the default retry policy
func WithRetryConfig(cfg *sdk.RetryConfig) Option {
	return func(o *options) {
		o.retry = cfg
	}
}

// NewWagon wraps an existing container client. The wagon is returned open
// and connected to a repository derived from the client URL; the client is
// used for the lifetime of the wagon.
func NewWagon(c *container.Client, opts ...Option) (*Wagon, error) {
	if c == nil {
		return nil, base.NewWagonError(base.ProtocolAzureBlob, "NewWagon", base.ErrConnection, "container client is nil", nil)
	}

	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	repo, err := repositoryFor(c.URL(), cfg.basedir)
	if err != nil {
		return nil, base.NewWagonError(base.ProtocolAzureBlob, "NewWagon", base.ErrConnection, "invalid container url", err)
	}

	store := sdk.NewPrefixedStore(NewStore(c), cfg.basedir)
	w := &Wagon{BaseWagon: sdk.NewBaseWagonWithStore(base.ProtocolAzureBlob, repo, store)}
	if cfg.retry != nil {
		w.SetRetryConfig(cfg.retry)
	}
	return w, nil
}

func repositoryFor(rawURL, basedir string) (*base.Repository, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	containerName := path.Base(strings.TrimSuffix(u.Path, "/"))
	if containerName == "." || containerName == "/" || containerName == "" {
		return nil, fmt.Errorf("no container in %q", rawURL)
	}

	dir := containerName
	if basedir != "" {
		dir += "/" + basedir
	}
	return base.ParseRepository(containerName, fmt.Sprintf("%s://%s/%s", base.ProtocolAzureBlob, accountFromURL(u), dir))
}

// dial builds the container client, verifies the container is reachable and
// optionally creates it.
func dial(ctx context.Context, repo *base.Repository, auth *base.AuthenticationInfo, proxy *base.ProxyInfo) (sdk.Store, error) {
	c, err := NewContainerClient(repo, auth, proxy)
	if err != nil {
		return nil, err
	}

	_, err = c.GetProperties(ctx, nil)
	switch {
	case err == nil:
	case isNotFound(err) && repo.BoolParameter(ParamCreateContainer):
		if _, cerr := c.Create(ctx, nil); cerr != nil && !bloberror.HasCode(cerr, bloberror.ContainerAlreadyExists) {
			return nil, fmt.Errorf("failed to create container: %w", cerr)
		}
	case isNotFound(err):
		return nil, fmt.Errorf("container does not exist: %w", err)
	case isAuthError(err):
		return nil, fmt.Errorf("%w: %w", base.ErrAuthentication, err)
	default:
		return nil, fmt.Errorf("failed to reach container: %w", err)
	}

	_, prefix := repo.SplitBasedir()
	return sdk.NewPrefixedStore(NewStore(c), prefix), nil
}

var _ base.Wagon = (*Wagon)(nil)
var _ sdk.StreamingWagon = (*Wagon)(nil)
