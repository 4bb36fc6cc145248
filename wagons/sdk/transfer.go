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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carlosmiranda/blobwagon/wagons/base"
)

// StreamingWagon is implemented by every wagon built on BaseWagon. It moves
// data through readers and writers instead of local files.
type StreamingWagon interface {
	base.Wagon
	Stat(ctx context.Context, resource string) (*ObjectInfo, error)
	Stream(ctx context.Context, resource string, w io.Writer) (int64, error)
	PutStream(ctx context.Context, resource string, r io.Reader, size int64, contentType string) error
}

var _ StreamingWagon = (*BaseWagon)(nil)

// classify maps a store error to a failure kind
func classify(err error) error {
	switch {
	case errors.Is(err, base.ErrNotFound):
		return base.ErrResourceDoesNotExist
	case errors.Is(err, base.ErrAuthorization), errors.Is(err, base.ErrAuthentication):
		return base.ErrAuthorization
	default:
		return base.ErrTransferFailed
	}
}

// ResourceExists asks the store whether resource exists. It makes exactly one
// store call and never retries. Every failure, including an invalid name, is
// reported as base.ErrTransferFailed carrying the resource and the cause.
func (w *BaseWagon) ResourceExists(ctx context.Context, resource string) (bool, error) {
	store, name, err := w.session("ResourceExists")
	if err != nil {
		return false, err
	}
	if err := base.ValidateResourceName(resource); err != nil {
		return false, base.NewResourceError(name, "ResourceExists", base.ErrTransferFailed, resource, err)
	}

	mctx, cancel := context.WithTimeout(ctx, w.Timeout())
	defer cancel()

	if err := w.wait(mctx); err != nil {
		return false, base.NewResourceError(name, "ResourceExists", base.ErrTransferFailed, resource, err)
	}

	timer := NewTimer()
	exists, err := store.Exists(mctx, base.CleanResourceName(resource))
	w.metrics.RecordOperation(OpExists, timer.Duration(), err)
	if err != nil {
		if errors.Is(err, base.ErrNotFound) {
			return false, nil
		}
		return false, base.NewResourceError(name, "ResourceExists", base.ErrTransferFailed, resource, err)
	}
	return exists, nil
}

// Stat returns the metadata of resource
func (w *BaseWagon) Stat(ctx context.Context, resource string) (*ObjectInfo, error) {
	store, name, err := w.session("Stat")
	if err != nil {
		return nil, err
	}
	if err := base.ValidateResourceName(resource); err != nil {
		return nil, base.NewResourceError(name, "Stat", base.ErrTransferFailed, resource, err)
	}
	info, err := w.stat(ctx, store, base.CleanResourceName(resource))
	if err != nil {
		return nil, base.NewResourceError(name, "Stat", classify(err), resource, err)
	}
	return info, nil
}

func (w *BaseWagon) stat(ctx context.Context, store Store, key string) (*ObjectInfo, error) {
	mctx, cancel := context.WithTimeout(ctx, w.Timeout())
	defer cancel()

	timer := NewTimer()
	info, err := RetryWithBackoff(mctx, w.GetRetryConfig(), func() (*ObjectInfo, error) {
		if err := w.wait(mctx); err != nil {
			return nil, err
		}
		return store.Stat(mctx, key)
	})
	w.metrics.RecordOperation(OpStat, timer.Duration(), err)
	return info, err
}

// Get downloads resource to destination. Data is written to a temporary file
// next to destination and renamed into place, so a failed transfer leaves
// no partial file behind.
func (w *BaseWagon) Get(ctx context.Context, resource, destination string) error {
	store, name, err := w.session("Get")
	if err != nil {
		return err
	}
	if err := base.ValidateResourceName(resource); err != nil {
		return base.NewResourceError(name, "Get", base.ErrTransferFailed, resource, err)
	}

	n := w.newTransfer(name, base.RequestGet, resource, destination, -1)
	n.initiated()

	written, err := w.getToFile(ctx, store, base.CleanResourceName(resource), destination, n)
	if err != nil {
		werr := base.NewResourceError(name, "Get", classify(err), resource, err)
		n.failed(werr)
		return werr
	}

	n.completed(written)
	w.logger.Debug("downloaded", map[string]interface{}{"resource": resource, "bytes": written})
	return nil
}

func (w *BaseWagon) getToFile(ctx context.Context, store Store, key, destination string, n *transferNotifier) (int64, error) {
	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destination)+".*.part")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n.started()
	rewind := func() error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return err
		}
		return tmp.Truncate(0)
	}
	written, err := w.download(ctx, store, key, tmp, rewind, n)
	if err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpName, destination); err != nil {
		return 0, err
	}
	renamed = true
	return written, nil
}

// Stream downloads resource into dst. Once bytes have reached dst a failed
// attempt is not retried.
func (w *BaseWagon) Stream(ctx context.Context, resource string, dst io.Writer) (int64, error) {
	store, name, err := w.session("Stream")
	if err != nil {
		return 0, err
	}
	if err := base.ValidateResourceName(resource); err != nil {
		return 0, base.NewResourceError(name, "Get", base.ErrTransferFailed, resource, err)
	}

	n := w.newTransfer(name, base.RequestGet, resource, "", -1)
	n.initiated()
	n.started()

	written, err := w.download(ctx, store, base.CleanResourceName(resource), dst, nil, n)
	if err != nil {
		werr := base.NewResourceError(name, "Get", classify(err), resource, err)
		n.failed(werr)
		return written, werr
	}
	n.completed(written)
	return written, nil
}

// download copies key into dst under the read timeout. rewind resets dst
// before a retry; without it, retries stop once dst has received data.
func (w *BaseWagon) download(ctx context.Context, store Store, key string, dst io.Writer, rewind func() error, n *transferNotifier) (int64, error) {
	rctx, cancel := context.WithTimeout(ctx, w.ReadTimeout())
	defer cancel()

	pw := &progressWriter{w: dst, onWrite: n.progress}
	timer := NewTimer()
	written, err := RetryWithBackoff(rctx, w.GetRetryConfig(), func() (int64, error) {
		if pw.n > 0 && rewind != nil {
			if err := rewind(); err != nil {
				return 0, &NonRetryableError{Err: err}
			}
			pw.n = 0
		}
		if err := w.wait(rctx); err != nil {
			return 0, err
		}
		got, err := store.Download(rctx, key, pw)
		if err != nil && pw.n > 0 && rewind == nil {
			return got, &NonRetryableError{Err: err}
		}
		return got, err
	})
	w.metrics.RecordOperation(OpGet, timer.Duration(), err)
	if err == nil {
		w.metrics.RecordBytes(OpGet, written)
	}
	return written, err
}

// GetIfNewer downloads resource only when it was modified after timestamp
func (w *BaseWagon) GetIfNewer(ctx context.Context, resource, destination string, timestamp time.Time) (bool, error) {
	store, name, err := w.session("GetIfNewer")
	if err != nil {
		return false, err
	}
	if err := base.ValidateResourceName(resource); err != nil {
		return false, base.NewResourceError(name, "GetIfNewer", base.ErrTransferFailed, resource, err)
	}

	info, err := w.stat(ctx, store, base.CleanResourceName(resource))
	if err != nil {
		return false, base.NewResourceError(name, "GetIfNewer", classify(err), resource, err)
	}
	if !info.LastModified.After(timestamp) {
		return false, nil
	}

	if err := w.Get(ctx, resource, destination); err != nil {
		return false, err
	}
	return true, nil
}

// Put uploads the regular file source to destination
func (w *BaseWagon) Put(ctx context.Context, source, destination string) error {
	store, name, err := w.session("Put")
	if err != nil {
		return err
	}
	if err := base.ValidateResourceName(destination); err != nil {
		return base.NewResourceError(name, "Put", base.ErrTransferFailed, destination, err)
	}

	fi, err := os.Stat(source)
	if err != nil {
		kind := base.ErrTransferFailed
		if errors.Is(err, fs.ErrNotExist) {
			kind = base.ErrResourceDoesNotExist
		}
		werr := base.NewWagonError(name, "Put", kind, fmt.Sprintf("cannot read local file '%s'", source), err)
		werr.Resource = destination
		return werr
	}
	if !fi.Mode().IsRegular() {
		werr := base.NewWagonError(name, "Put", base.ErrTransferFailed, fmt.Sprintf("'%s' is not a regular file", source), nil)
		werr.Resource = destination
		return werr
	}

	key := base.CleanResourceName(destination)
	n := w.newTransfer(name, base.RequestPut, destination, source, fi.Size())
	n.initiated()
	n.started()

	open := func() (io.ReadCloser, error) {
		return os.Open(source)
	}
	if err := w.upload(ctx, store, key, open, fi.Size(), ContentTypeFor(key), n, w.GetRetryConfig()); err != nil {
		werr := base.NewResourceError(name, "Put", classify(err), destination, err)
		n.failed(werr)
		return werr
	}

	n.completed(fi.Size())
	w.logger.Debug("uploaded", map[string]interface{}{"resource": destination, "bytes": fi.Size()})
	return nil
}

// PutStream uploads size bytes from r to resource. Readers that implement
// io.Seeker are rewound between retries; others are sent once.
func (w *BaseWagon) PutStream(ctx context.Context, resource string, r io.Reader, size int64, contentType string) error {
	store, name, err := w.session("PutStream")
	if err != nil {
		return err
	}
	if err := base.ValidateResourceName(resource); err != nil {
		return base.NewResourceError(name, "Put", base.ErrTransferFailed, resource, err)
	}

	key := base.CleanResourceName(resource)
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}

	retry := w.GetRetryConfig()
	var open func() (io.ReadCloser, error)
	if rs, ok := r.(io.ReadSeeker); ok {
		open = func() (io.ReadCloser, error) {
			if _, err := rs.Seek(0, io.SeekStart); err != nil {
				return nil, err
			}
			return nopSeekCloser{rs}, nil
		}
	} else {
		retry = NoRetryConfig()
		open = func() (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		}
	}

	n := w.newTransfer(name, base.RequestPut, resource, "", size)
	n.initiated()
	n.started()

	if err := w.upload(ctx, store, key, open, size, contentType, n, retry); err != nil {
		werr := base.NewResourceError(name, "Put", classify(err), resource, err)
		n.failed(werr)
		return werr
	}
	n.completed(size)
	return nil
}

func (w *BaseWagon) upload(ctx context.Context, store Store, key string, open func() (io.ReadCloser, error), size int64, contentType string, n *transferNotifier, retry *RetryConfig) error {
	rctx, cancel := context.WithTimeout(ctx, w.ReadTimeout())
	defer cancel()

	timer := NewTimer()
	err := RetryVoid(rctx, retry, func() error {
		if err := w.wait(rctx); err != nil {
			return err
		}
		rc, err := open()
		if err != nil {
			return &NonRetryableError{Err: err}
		}
		defer rc.Close()
		return store.Upload(rctx, key, newProgressReader(rc, n.progress), size, contentType)
	})
	w.metrics.RecordOperation(OpPut, timer.Duration(), err)
	if err == nil && size > 0 {
		w.metrics.RecordBytes(OpPut, size)
	}
	return err
}

// PutDirectory uploads every regular file below sourceDir to
// destinationDir/<relative path>. Uploads run on a bounded pool; the first
// failure cancels the remaining ones.
func (w *BaseWagon) PutDirectory(ctx context.Context, sourceDir, destinationDir string) error {
	_, name, err := w.session("PutDirectory")
	if err != nil {
		return err
	}

	destDir, err := base.CleanDirectoryName(destinationDir)
	if err != nil {
		return base.NewResourceError(name, "PutDirectory", base.ErrTransferFailed, destinationDir, err)
	}

	fi, err := os.Stat(sourceDir)
	if err != nil || !fi.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", sourceDir)
		}
		werr := base.NewWagonError(name, "PutDirectory", base.ErrTransferFailed,
			fmt.Sprintf("cannot read local directory '%s'", sourceDir), err)
		werr.Resource = destinationDir
		return werr
	}

	var files []string
	err = filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		werr := base.NewWagonError(name, "PutDirectory", base.ErrTransferFailed,
			fmt.Sprintf("cannot walk local directory '%s'", sourceDir), err)
		werr.Resource = destinationDir
		return werr
	}

	w.mu.RLock()
	limit := w.concurrency
	w.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range files {
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return base.NewWagonError(name, "PutDirectory", base.ErrTransferFailed, "cannot resolve relative path", err)
		}
		key := base.JoinKey(destDir, filepath.ToSlash(rel))
		p := p
		g.Go(func() error {
			return w.Put(gctx, p, key)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w.logger.Info("directory uploaded", map[string]interface{}{"source": sourceDir, "destination": destDir, "files": len(files)})
	return nil
}

// GetFileList returns the immediate children of destinationDir, sorted.
// Sub-directories appear once with a trailing slash.
func (w *BaseWagon) GetFileList(ctx context.Context, destinationDir string) ([]string, error) {
	store, name, err := w.session("GetFileList")
	if err != nil {
		return nil, err
	}

	dir, err := base.CleanDirectoryName(destinationDir)
	if err != nil {
		return nil, base.NewResourceError(name, "GetFileList", base.ErrTransferFailed, destinationDir, err)
	}
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	mctx, cancel := context.WithTimeout(ctx, w.Timeout())
	defer cancel()

	timer := NewTimer()
	objs, err := RetryWithBackoff(mctx, w.GetRetryConfig(), func() ([]ObjectInfo, error) {
		if err := w.wait(mctx); err != nil {
			return nil, err
		}
		return store.List(mctx, prefix)
	})
	w.metrics.RecordOperation(OpList, timer.Duration(), err)
	if err != nil {
		return nil, base.NewResourceError(name, "GetFileList", classify(err), destinationDir, err)
	}

	seen := make(map[string]bool)
	var entries []string
	for _, obj := range objs {
		rest := strings.TrimPrefix(obj.Key, prefix)
		if rest == "" {
			continue
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i+1]
		}
		if !seen[rest] {
			seen[rest] = true
			entries = append(entries, rest)
		}
	}
	if len(entries) == 0 {
		return nil, base.NewResourceError(name, "GetFileList", base.ErrResourceDoesNotExist, destinationDir, nil)
	}

	sort.Strings(entries)
	return entries, nil
}

type progressWriter struct {
	w       io.Writer
	n       int64
	onWrite func(int)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.n += int64(n)
		p.onWrite(n)
	}
	return n, err
}

type nopSeekCloser struct {
	io.ReadSeeker
}

func (nopSeekCloser) Close() error { return nil }

// progressReader reports each byte once even when the consumer rewinds
// and reads the body again, as signing clients do.
type progressReader struct {
	r        io.Reader
	onRead   func(int)
	pos      int64
	reported int64
}

// seekingProgressReader wraps sources that implement io.Seeker.
type seekingProgressReader struct {
	*progressReader
	s io.Seeker
}

func newProgressReader(r io.Reader, onRead func(int)) io.Reader {
	p := &progressReader{r: r, onRead: onRead}
	if s, ok := r.(io.Seeker); ok {
		return &seekingProgressReader{progressReader: p, s: s}
	}
	return p
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.pos += int64(n)
		if p.pos > p.reported {
			p.onRead(int(p.pos - p.reported))
			p.reported = p.pos
		}
	}
	return n, err
}

func (p *seekingProgressReader) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.s.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	p.pos = pos
	return pos, nil
}
