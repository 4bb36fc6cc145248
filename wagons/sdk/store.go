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

package sdk

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"
	"time"
)

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
}

// Store is the backend seam a wagon drives. Keys are slash separated and
// relative to the store root. Stat and Download return an error wrapping
// base.ErrNotFound when the object is absent.
type Store interface {
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
	Download(ctx context.Context, key string, w io.Writer) (int64, error)
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Close() error
}

// PrefixedStore roots a Store below a key prefix
type PrefixedStore struct {
	Store
	prefix string
}

// NewPrefixedStore returns s itself when prefix is empty
func NewPrefixedStore(s Store, prefix string) Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return s
	}
	return &PrefixedStore{Store: s, prefix: prefix + "/"}
}

func (p *PrefixedStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := p.Store.Stat(ctx, p.prefix+key)
	if err != nil {
		return nil, err
	}
	out := *info
	out.Key = strings.TrimPrefix(out.Key, p.prefix)
	return &out, nil
}

func (p *PrefixedStore) Exists(ctx context.Context, key string) (bool, error) {
	return p.Store.Exists(ctx, p.prefix+key)
}

func (p *PrefixedStore) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	return p.Store.Download(ctx, p.prefix+key, w)
}

func (p *PrefixedStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return p.Store.Upload(ctx, p.prefix+key, r, size, contentType)
}

func (p *PrefixedStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objs, err := p.Store.List(ctx, p.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i := range objs {
		objs[i].Key = strings.TrimPrefix(objs[i].Key, p.prefix)
	}
	return objs, nil
}

var artifactContentTypes = map[string]string{
	".pom":    "application/xml",
	".xml":    "application/xml",
	".jar":    "application/java-archive",
	".war":    "application/java-archive",
	".asc":    "text/plain",
	".md5":    "text/plain",
	".sha1":   "text/plain",
	".sha256": "text/plain",
	".sha512": "text/plain",
}

// ContentTypeFor derives the content type from the key's extension
func ContentTypeFor(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ct, ok := artifactContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
