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
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// Well-known Azurite development storage account
const (
	DevstoreAccount  = "devstoreaccount1"
	DevstoreKey      = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
	DevstoreEndpoint = "http://127.0.0.1:10000/" + DevstoreAccount
)

// Repository parameters understood by the Azure wagon
const (
	ParamConnectionString   = "connection_string"
	ParamSASToken           = "sas_token"
	ParamUseManagedIdentity = "use_managed_identity"
	ParamEmulated           = "emulated"
	ParamEndpoint           = "endpoint"
	ParamCreateContainer    = "create_container"
)

// EnvConnectionString is consulted when no other credential is configured
const EnvConnectionString = "AZURE_STORAGE_CONNECTION_STRING"

// NewContainerClient builds a container client for repo. The container is
// the first basedir segment; credentials come from the repository parameters
// or auth, in that order.
func NewContainerClient(repo *base.Repository, auth *base.AuthenticationInfo, proxy *base.ProxyInfo) (*container.Client, error) {
	containerName, _ := repo.SplitBasedir()
	if containerName == "" {
		return nil, fmt.Errorf("repository %s has no container", repo.ID)
	}
	opts := clientOptions(proxy)

	if cs := repo.Parameter(ParamConnectionString, ""); cs != "" {
		c, err := container.NewClientFromConnectionString(cs, containerName, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid connection string: %w", base.ErrAuthentication, err)
		}
		return c, nil
	}

	account := repo.Host()
	if auth != nil && auth.UserName != "" {
		account = auth.UserName
	}
	endpoint := strings.TrimSuffix(repo.Parameter(ParamEndpoint, ""), "/")
	emulated := repo.BoolParameter(ParamEmulated)
	if endpoint == "" {
		if emulated {
			endpoint = DevstoreEndpoint
		} else {
			endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", account)
		}
	}
	containerURL := endpoint + "/" + url.PathEscape(containerName)

	if sas := repo.Parameter(ParamSASToken, ""); sas != "" {
		c, err := container.NewClientWithNoCredential(appendSASToken(containerURL, sas), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create container client: %w", err)
		}
		return c, nil
	}

	if repo.BoolParameter(ParamUseManagedIdentity) {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create Azure credential: %w", base.ErrAuthentication, err)
		}
		c, err := container.NewClient(containerURL, cred, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create container client: %w", err)
		}
		return c, nil
	}

	key := ""
	if auth != nil {
		key = auth.Password
	}
	if key == "" && emulated {
		account, key = DevstoreAccount, DevstoreKey
	}
	if key != "" {
		cred, err := azblob.NewSharedKeyCredential(account, key)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid shared key: %w", base.ErrAuthentication, err)
		}
		c, err := container.NewClientWithSharedKeyCredential(containerURL, cred, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create container client: %w", err)
		}
		return c, nil
	}

	if cs := os.Getenv(EnvConnectionString); cs != "" {
		c, err := container.NewClientFromConnectionString(cs, containerName, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s: %w", base.ErrAuthentication, EnvConnectionString, err)
		}
		return c, nil
	}

	return nil, fmt.Errorf("%w: no credentials configured for %s", base.ErrAuthentication, repo.ID)
}

// clientOptions disables SDK retries and routes traffic through proxy
func clientOptions(proxy *base.ProxyInfo) *container.ClientOptions {
	opts := &container.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	if proxy != nil && proxy.Host != "" {
		opts.Transport = sdk.NewProxyHTTPClient(proxy)
	}
	return opts
}

func appendSASToken(rawURL, token string) string {
	token = strings.TrimPrefix(token, "?")
	if strings.Contains(rawURL, "?") {
		return rawURL + "&" + token
	}
	return rawURL + "?" + token
}

// accountFromURL extracts the account name from a blob service URL. Path
// style URLs used by the emulator carry it as the first path segment.
func accountFromURL(u *url.URL) string {
	host := u.Hostname()
	if account, _, ok := strings.Cut(host, ".blob."); ok {
		return account
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if first != "" && strings.Count(strings.Trim(u.Path, "/"), "/") >= 1 {
		return first
	}
	return host
}
