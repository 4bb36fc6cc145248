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

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// Bucket is the subset of bucket operations the store uses
type Bucket interface {
	Attrs(ctx context.Context, key string) (*storage.ObjectAttrs, error)
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)
	NewWriter(ctx context.Context, key, contentType string) io.WriteCloser
	Objects(ctx context.Context, prefix string) ObjectIterator
}

// ObjectIterator is satisfied by *storage.ObjectIterator
type ObjectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

// handleBucket adapts a *storage.BucketHandle to Bucket
type handleBucket struct {
	h *storage.BucketHandle
}

// NewBucket adapts a bucket handle
func NewBucket(h *storage.BucketHandle) Bucket {
	return handleBucket{h: h}
}

func (b handleBucket) Attrs(ctx context.Context, key string) (*storage.ObjectAttrs, error) {
	return b.h.Object(key).Attrs(ctx)
}

func (b handleBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return b.h.Object(key).NewReader(ctx)
}

func (b handleBucket) NewWriter(ctx context.Context, key, contentType string) io.WriteCloser {
	w := b.h.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b handleBucket) Objects(ctx context.Context, prefix string) ObjectIterator {
	return b.h.Objects(ctx, &storage.Query{Prefix: prefix})
}

// Store implements sdk.Store over a GCS bucket
type Store struct {
	bucket Bucket
	closer io.Closer
}

// NewStore wraps bucket. closer, when not nil, is closed with the store.
func NewStore(bucket Bucket, closer io.Closer) *Store {
	return &Store{bucket: bucket, closer: closer}
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.bucket.Attrs(ctx, key)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) Stat(ctx context.Context, key string) (*sdk.ObjectInfo, error) {
	attrs, err := s.bucket.Attrs(ctx, key)
	if err != nil {
		return nil, mapError(key, err)
	}
	info := toObjectInfo(attrs)
	return &info, nil
}

func (s *Store) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	r, err := s.bucket.NewReader(ctx, key)
	if err != nil {
		return 0, mapError(key, err)
	}
	defer r.Close()

	n, err := io.Copy(w, r)
	if err != nil {
		return n, fmt.Errorf("failed to read object %q: %w", key, err)
	}
	return n, nil
}

func (s *Store) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	// Cancelling the context aborts the upload instead of committing it
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.NewWriter(wctx, key, contentType)
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("failed to write object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return mapError(key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]sdk.ObjectInfo, error) {
	var out []sdk.ObjectInfo
	it := s.bucket.Objects(ctx, prefix)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapError(prefix, err)
		}
		out = append(out, toObjectInfo(attrs))
	}
	return out, nil
}

func (s *Store) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func toObjectInfo(attrs *storage.ObjectAttrs) sdk.ObjectInfo {
	return sdk.ObjectInfo{
		Key:          attrs.Name,
		Size:         attrs.Size,
		LastModified: attrs.Updated,
		ETag:         attrs.Etag,
		ContentType:  attrs.ContentType,
	}
}

func isNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func isAuthError(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden)
}

func mapError(key string, err error) error {
	switch {
	case isNotFound(err):
		return fmt.Errorf("%w: %s: %w", base.ErrNotFound, key, err)
	case isAuthError(err):
		return fmt.Errorf("%w: %s: %w", base.ErrAuthorization, key, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return sdk.MarkTransient(err, gerr.Code, gerr.Header)
	}
	return err
}

var _ sdk.Store = (*Store)(nil)
