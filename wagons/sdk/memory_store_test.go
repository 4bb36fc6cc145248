// Copyright 2025 The blobwagon Authors
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/carlosmiranda/blobwagon/wagons/base"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Upload(ctx, "a/b.txt", strings.NewReader("hello"), 5, "text/plain"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := s.Upload(ctx, "a/c.txt", strings.NewReader("hi"), 5, ""); err == nil {
		t.Error("expected size mismatch error")
	}

	exists, err := s.Exists(ctx, "a/b.txt")
	if err != nil || !exists {
		t.Errorf("Exists = %v, %v", exists, err)
	}

	info, err := s.Stat(ctx, "a/b.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 5 || info.ContentType != "text/plain" || info.ETag == "" {
		t.Errorf("unexpected info %+v", info)
	}

	if _, err := s.Stat(ctx, "missing"); !errors.Is(err, base.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	var buf bytes.Buffer
	if n, err := s.Download(ctx, "a/b.txt", &buf); err != nil || n != 5 || buf.String() != "hello" {
		t.Errorf("Download = %d, %v, %q", n, err, buf.String())
	}

	s.PutObject("b/d.txt", []byte("x"))
	objs, err := s.List(ctx, "a/")
	if err != nil || len(objs) != 1 || objs[0].Key != "a/b.txt" {
		t.Errorf("List = %+v, %v", objs, err)
	}

	s.Shutdown()
	if _, err := s.Exists(ctx, "a/b.txt"); err == nil {
		t.Error("expected error after Shutdown")
	}
}

func TestPrefixedStore(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	s := NewPrefixedStore(inner, "/releases/")

	if err := s.Upload(ctx, "a.jar", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, ok := inner.Object("releases/a.jar"); !ok {
		t.Error("expected key below prefix")
	}

	info, err := s.Stat(ctx, "a.jar")
	if err != nil || info.Key != "a.jar" {
		t.Errorf("Stat = %+v, %v", info, err)
	}
	objs, err := s.List(ctx, "")
	if err != nil || len(objs) != 1 || objs[0].Key != "a.jar" {
		t.Errorf("List = %+v, %v", objs, err)
	}

	if NewPrefixedStore(inner, "") != Store(inner) {
		t.Error("empty prefix should return the store unchanged")
	}
}

func TestMemoryDialer(t *testing.T) {
	ctx := context.Background()
	repo, err := base.ParseRepository("m", "mem://dialer-test/base")
	if err != nil {
		t.Fatal(err)
	}

	w := NewMemoryWagon()
	if err := w.Connect(ctx, repo); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := w.PutStream(ctx, "x.txt", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("PutStream: %v", err)
	}
	if _, ok := NamedMemoryStore("dialer-test").Object("base/x.txt"); !ok {
		t.Error("expected object in the named store")
	}

	s3Repo, _ := base.ParseRepository("s", "s3://bucket")
	if _, err := MemoryDialer(ctx, s3Repo, nil, nil); err == nil {
		t.Error("expected error for non-memory repository")
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a/b.pom":         "application/xml",
		"a/b.JAR":         "application/java-archive",
		"a/b.jar.sha1":    "text/plain",
		"a/b.unknownext1": "application/octet-stream",
	}
	for key, want := range tests {
		if got := ContentTypeFor(key); got != want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", key, got, want)
		}
	}
}
