// Copyright 2025 The blobwagon Authors
// SPDX-License-Identifier: Apache-2.0

package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/carlosmiranda/blobwagon/shared/logger"
	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string]*storage.ObjectAttrs
	data     map[string][]byte
	attrsErr error
	calls    int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{
		objects: make(map[string]*storage.ObjectAttrs),
		data:    make(map[string][]byte),
	}
}

func (b *fakeBucket) put(key, data, contentType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = &storage.ObjectAttrs{
		Name:        key,
		Size:        int64(len(data)),
		ContentType: contentType,
		Updated:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Etag:        "CJjB",
	}
	b.data[key] = []byte(data)
}

func (b *fakeBucket) Attrs(ctx context.Context, key string) (*storage.ObjectAttrs, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.attrsErr != nil {
		return nil, b.attrsErr
	}
	attrs, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return attrs, nil
}

func (b *fakeBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBucket) NewWriter(ctx context.Context, key, contentType string) io.WriteCloser {
	return &fakeWriter{ctx: ctx, bucket: b, key: key, contentType: contentType}
}

func (b *fakeBucket) Objects(ctx context.Context, prefix string) ObjectIterator {
	b.mu.Lock()
	defer b.mu.Unlock()
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	it := &fakeIterator{}
	for _, k := range keys {
		it.items = append(it.items, b.objects[k])
	}
	return it
}

type fakeWriter struct {
	ctx         context.Context
	bucket      *fakeBucket
	key         string
	contentType string
	buf         bytes.Buffer
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *fakeWriter) Close() error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.bucket.put(w.key, w.buf.String(), w.contentType)
	return nil
}

type fakeIterator struct {
	items []*storage.ObjectAttrs
}

func (it *fakeIterator) Next() (*storage.ObjectAttrs, error) {
	if len(it.items) == 0 {
		return nil, iterator.Done
	}
	next := it.items[0]
	it.items = it.items[1:]
	return next, nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func newFakeWagon(t *testing.T, basedir string) (*Wagon, *fakeBucket) {
	t.Helper()
	bucket := newFakeBucket()
	w, err := NewWagon(bucket, "artifacts", basedir)
	if err != nil {
		t.Fatalf("NewWagon: %v", err)
	}
	w.SetLogger(logger.Nop())
	w.SetRetryConfig(sdk.NoRetryConfig())
	return w, bucket
}

func TestResourceExists(t *testing.T) {
	w, bucket := newFakeWagon(t, "maven")
	bucket.put("maven/path/to/first.txt", "abcde", "text/plain")

	got, err := w.ResourceExists(context.Background(), "path/to/first.txt")
	if err != nil || !got {
		t.Fatalf("ResourceExists = %v, %v; want true", got, err)
	}
	got, err = w.ResourceExists(context.Background(), "does/not/exist")
	if err != nil || got {
		t.Fatalf("ResourceExists(missing) = %v, %v; want false", got, err)
	}
}

func TestResourceExists_Forbidden(t *testing.T) {
	w, bucket := newFakeWagon(t, "")
	bucket.attrsErr = &googleapi.Error{Code: http.StatusForbidden, Message: "denied"}

	_, err := w.ResourceExists(context.Background(), "a.jar")
	if !errors.Is(err, base.ErrTransferFailed) {
		t.Fatalf("error = %v, want ErrTransferFailed", err)
	}
	if bucket.calls != 1 {
		t.Errorf("Attrs calls = %d, want 1", bucket.calls)
	}

	if _, err := w.Stat(context.Background(), "a.jar"); !errors.Is(err, base.ErrAuthorization) {
		t.Errorf("Stat error = %v, want ErrAuthorization", err)
	}
}

func TestMapError_Throttling(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "3")
	err := mapError("a.jar", &googleapi.Error{Code: http.StatusTooManyRequests, Header: header})

	var marked *sdk.RetryableError
	if !errors.As(err, &marked) {
		t.Fatalf("429 should be retryable, got %v", err)
	}
	if marked.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", marked.RetryAfter)
	}

	if err := mapError("a.jar", &googleapi.Error{Code: http.StatusNotFound}); !errors.Is(err, base.ErrNotFound) {
		t.Errorf("404 = %v, want ErrNotFound", err)
	}
	if err := mapError("a.jar", &googleapi.Error{Code: http.StatusConflict}); errors.As(err, &marked) {
		t.Errorf("409 must not be retryable: %v", err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	w, bucket := newFakeWagon(t, "maven")
	dir := t.TempDir()
	src := filepath.Join(dir, "lib.jar")
	if err := os.WriteFile(src, []byte("library"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := w.Put(ctx, src, "org/lib/1.0/lib.jar"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	attrs, ok := bucket.objects["maven/org/lib/1.0/lib.jar"]
	if !ok {
		t.Fatal("object not stored below basedir")
	}
	if attrs.ContentType != "application/java-archive" {
		t.Errorf("ContentType = %q", attrs.ContentType)
	}

	dst := filepath.Join(dir, "out.jar")
	if err := w.Get(ctx, "org/lib/1.0/lib.jar", dst); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "library" {
		t.Errorf("downloaded %q", data)
	}

	updated, err := w.GetIfNewer(ctx, "org/lib/1.0/lib.jar", dst, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil || updated {
		t.Errorf("GetIfNewer = %v, %v; want false", updated, err)
	}
}

func TestStore_UploadAbortsOnReadError(t *testing.T) {
	bucket := newFakeBucket()
	store := NewStore(bucket, nil)

	err := store.Upload(context.Background(), "broken.bin", failingReader{}, -1, "application/octet-stream")
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := bucket.objects["broken.bin"]; ok {
		t.Error("aborted upload was committed")
	}
}

func TestGetFileList(t *testing.T) {
	w, bucket := newFakeWagon(t, "")
	for _, k := range []string{"a/1.txt", "a/sub/2.txt", "b.txt"} {
		bucket.put(k, "x", "text/plain")
	}

	got, err := w.GetFileList(context.Background(), "")
	if err != nil {
		t.Fatalf("GetFileList: %v", err)
	}
	if want := []string{"a/", "b.txt"}; !reflect.DeepEqual(got, want) {
		t.Errorf("GetFileList = %v, want %v", got, want)
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name string
		url  string
		auth *base.AuthenticationInfo
		want int
	}{
		{"adc", "gs://bucket", nil, 0},
		{"file", "gs://bucket?credentials_file=/etc/sa.json", nil, 1},
		{"json", "gs://bucket?credentials_json=%7B%7D", nil, 1},
		{"private key", "gs://bucket", &base.AuthenticationInfo{PrivateKey: "{}"}, 1},
		{"emulator", "gs://bucket?anonymous=true&endpoint=http://localhost:4443/storage/v1/", nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := base.ParseRepository("r", tt.url)
			if err != nil {
				t.Fatal(err)
			}
			if got := len(ClientOptions(repo, tt.auth)); got != tt.want {
				t.Errorf("len(ClientOptions) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewWagon_Validation(t *testing.T) {
	if _, err := NewWagon(nil, "bucket", ""); !errors.Is(err, base.ErrConnection) {
		t.Errorf("nil bucket error = %v", err)
	}
}
