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
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// Store implements sdk.Store over a single blob container
type Store struct {
	container *container.Client
}

// NewStore wraps a container client
func NewStore(c *container.Client) *Store {
	return &Store{container: c}
}

// Container returns the underlying container client
func (s *Store) Container() *container.Client {
	return s.container
}

// Exists issues a single blob GetProperties request. A missing blob or
// container is reported as false; every other failure is returned as is.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) Stat(ctx context.Context, key string) (*sdk.ObjectInfo, error) {
	props, err := s.container.NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return nil, mapError(key, err)
	}

	info := &sdk.ObjectInfo{Key: key}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		info.LastModified = *props.LastModified
	}
	if props.ETag != nil {
		info.ETag = string(*props.ETag)
	}
	if props.ContentType != nil {
		info.ContentType = *props.ContentType
	}
	return info, nil
}

func (s *Store) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	resp, err := s.container.NewBlobClient(key).DownloadStream(ctx, nil)
	if err != nil {
		return 0, mapError(key, err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	opts := &blockblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentType),
		},
	}
	if _, err := s.container.NewBlockBlobClient(key).UploadStream(ctx, r, opts); err != nil {
		return mapError(key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]sdk.ObjectInfo, error) {
	opts := &container.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}

	var out []sdk.ObjectInfo
	pager := s.container.NewListBlobsFlatPager(opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapError(prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			info := sdk.ObjectInfo{Key: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					info.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					info.LastModified = *p.LastModified
				}
				if p.ETag != nil {
					info.ETag = string(*p.ETag)
				}
				if p.ContentType != nil {
					info.ContentType = *p.ContentType
				}
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Close is a no-op; the container client holds no connections of its own.
func (s *Store) Close() error {
	return nil
}

func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ResourceNotFound, bloberror.ContainerNotFound) {
		return true
	}
	// HEAD responses carry no body; fall back to the status code
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

func isAuthError(err error) bool {
	if bloberror.HasCode(err,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch,
		bloberror.InsufficientAccountPermissions,
	) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) &&
		(respErr.StatusCode == http.StatusUnauthorized || respErr.StatusCode == http.StatusForbidden)
}

// mapError tags SDK errors with the store-level sentinels
func mapError(key string, err error) error {
	switch {
	case isNotFound(err):
		return fmt.Errorf("%w: %s: %w", base.ErrNotFound, key, err)
	case isAuthError(err):
		return fmt.Errorf("%w: %s: %w", base.ErrAuthorization, key, err)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		var header http.Header
		if respErr.RawResponse != nil {
			header = respErr.RawResponse.Header
		}
		return sdk.MarkTransient(err, respErr.StatusCode, header)
	}
	return err
}

var _ sdk.Store = (*Store)(nil)
