// Copyright 2025 The blobwagon Authors
// SPDX-License-Identifier: Apache-2.0

package azureblob

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/carlosmiranda/blobwagon/shared/logger"
	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

func newFakeWagon(t *testing.T, opts ...Option) (*Wagon, *fakeAzure) {
	t.Helper()
	fake, _, c := startFakeAzure(t, "artifacts")
	opts = append([]Option{WithRetryConfig(sdk.NoRetryConfig())}, opts...)
	w, err := NewWagon(c, opts...)
	if err != nil {
		t.Fatalf("NewWagon: %v", err)
	}
	w.SetLogger(logger.Nop())
	return w, fake
}

func TestNewWagon_Connected(t *testing.T) {
	w, _ := newFakeWagon(t)

	if !w.IsConnected() {
		t.Fatal("expected wagon built from a container client to be connected")
	}
	if got := w.Repository().Protocol(); got != base.ProtocolAzureBlob {
		t.Errorf("Protocol() = %q", got)
	}
	if got := w.Name(); got != "artifacts" {
		t.Errorf("Name() = %q, want artifacts", got)
	}
	if container, _ := w.Repository().SplitBasedir(); container != "artifacts" {
		t.Errorf("container = %q, want artifacts", container)
	}
}

func TestNewWagon_NilClient(t *testing.T) {
	_, err := NewWagon(nil)
	if !errors.Is(err, base.ErrConnection) {
		t.Fatalf("NewWagon(nil) error = %v, want ErrConnection", err)
	}
}

func TestResourceExists(t *testing.T) {
	w, fake := newFakeWagon(t)
	fake.put("path/to/first.txt", "abcde")
	fake.put("path/to/second.txt", "defgh")
	fake.put("another/path/here.txt", "12345")

	tests := []struct {
		resource string
		want     bool
	}{
		{"path/to/first.txt", true},
		{"path/to/second.txt", true},
		{"another/path/here.txt", true},
		{"/path/to/first.txt", true},
		{"does/not/exist", false},
		{"path/to", false},
	}

	for _, tt := range tests {
		t.Run(tt.resource, func(t *testing.T) {
			got, err := w.ResourceExists(context.Background(), tt.resource)
			if err != nil {
				t.Fatalf("ResourceExists: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResourceExists(%q) = %v, want %v", tt.resource, got, tt.want)
			}
		})
	}
}

func TestResourceExists_Basedir(t *testing.T) {
	w, fake := newFakeWagon(t, WithBasedir("releases/"))
	fake.put("releases/lib/app.jar", "jar")
	fake.put("lib/app.jar", "outside")

	got, err := w.ResourceExists(context.Background(), "lib/app.jar")
	if err != nil || !got {
		t.Fatalf("ResourceExists = %v, %v; want true", got, err)
	}
	got, err = w.ResourceExists(context.Background(), "app.jar")
	if err != nil || got {
		t.Fatalf("ResourceExists(app.jar) = %v, %v; want false", got, err)
	}
}

func TestResourceExists_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"server error", http.StatusInternalServerError, "InternalError"},
		{"forbidden", http.StatusForbidden, "AuthorizationFailure"},
		{"throttled", http.StatusServiceUnavailable, "ServerBusy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, fake := newFakeWagon(t)
			w.SetRetryConfig(sdk.DefaultRetryConfig())
			fake.fail(tt.status, tt.code)

			_, err := w.ResourceExists(context.Background(), "path/to/first.txt")
			if !errors.Is(err, base.ErrTransferFailed) {
				t.Fatalf("error = %v, want ErrTransferFailed", err)
			}
			if !strings.Contains(err.Error(), "path/to/first.txt") {
				t.Errorf("error %q does not name the resource", err)
			}
			if errors.Unwrap(err) == nil {
				t.Error("expected the cause to be preserved")
			}
			if n := fake.callCount(http.MethodHead); n != 1 {
				t.Errorf("HEAD requests = %d, want exactly 1", n)
			}
		})
	}
}

func TestStore_ThrottlingIsRetryable(t *testing.T) {
	fake, _, c := startFakeAzure(t, "artifacts")
	fake.put("app.jar", "jar")
	fake.throttle(1, http.StatusServiceUnavailable, "ServerBusy", "2")

	_, err := NewStore(c).Stat(context.Background(), "app.jar")
	var marked *sdk.RetryableError
	if !errors.As(err, &marked) {
		t.Fatalf("Stat error %v is not marked retryable", err)
	}
	if marked.RetryAfter != 2*time.Second {
		t.Errorf("RetryAfter = %v, want 2s", marked.RetryAfter)
	}

	fake.throttle(1, http.StatusBadRequest, "InvalidQueryParameterValue", "")
	_, err = NewStore(c).Stat(context.Background(), "app.jar")
	if errors.As(err, &marked) {
		t.Errorf("400 must not be marked retryable: %v", err)
	}
}

func TestGet_RetriesThrottledRequests(t *testing.T) {
	w, fake := newFakeWagon(t)
	w.SetRetryConfig(&sdk.RetryConfig{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		RetryIf:         func(error) bool { return false },
	})
	fake.put("app.jar", "jar-bytes")
	fake.throttle(1, http.StatusTooManyRequests, "ServerBusy", "1")

	dst := filepath.Join(t.TempDir(), "app.jar")
	if err := w.Get(context.Background(), "app.jar", dst); err != nil {
		t.Fatalf("Get after one throttled response: %v", err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "jar-bytes" {
		t.Errorf("downloaded %q", data)
	}
}

func TestResourceExists_TransportFailure(t *testing.T) {
	_, srv, c := startFakeAzure(t, "artifacts")
	w, err := NewWagon(c)
	if err != nil {
		t.Fatalf("NewWagon: %v", err)
	}
	w.SetLogger(logger.Nop())
	srv.Close()

	_, err = w.ResourceExists(context.Background(), "path/to/first.txt")
	if !errors.Is(err, base.ErrTransferFailed) {
		t.Fatalf("error = %v, want ErrTransferFailed", err)
	}
	var werr *base.WagonError
	if !errors.As(err, &werr) {
		t.Fatalf("error %T is not a *WagonError", err)
	}
	if werr.Resource != "path/to/first.txt" || werr.Cause == nil {
		t.Errorf("WagonError = %+v", werr)
	}
}

func TestResourceExists_InvalidName(t *testing.T) {
	w, fake := newFakeWagon(t)

	for _, name := range []string{"", "a//b", "../escape", "a\\b"} {
		_, err := w.ResourceExists(context.Background(), name)
		if !errors.Is(err, base.ErrTransferFailed) {
			t.Errorf("ResourceExists(%q) error = %v, want ErrTransferFailed", name, err)
		}
		if !errors.Is(err, base.ErrInvalidResourceName) {
			t.Errorf("ResourceExists(%q) should carry ErrInvalidResourceName", name)
		}
	}
	if n := fake.callCount(http.MethodHead); n != 0 {
		t.Errorf("invalid names reached the service %d times", n)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	w, fake := newFakeWagon(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "app-1.0.pom")
	if err := os.WriteFile(src, []byte("<project/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := w.Put(ctx, src, "com/example/app/1.0/app-1.0.pom"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got, ok := fake.blob("com/example/app/1.0/app-1.0.pom"); !ok || got != "<project/>" {
		t.Fatalf("stored blob = %q, %v", got, ok)
	}

	info, err := w.Stat(ctx, "com/example/app/1.0/app-1.0.pom")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != int64(len("<project/>")) || info.ContentType != "application/xml" {
		t.Errorf("Stat = %+v", info)
	}

	dst := filepath.Join(dir, "out", "app.pom")
	if err := w.Get(ctx, "com/example/app/1.0/app-1.0.pom", dst); err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "<project/>" {
		t.Errorf("downloaded %q", data)
	}
}

func TestGet_Missing(t *testing.T) {
	w, _ := newFakeWagon(t)
	dst := filepath.Join(t.TempDir(), "missing.jar")

	err := w.Get(context.Background(), "does/not/exist.jar", dst)
	if !errors.Is(err, base.ErrResourceDoesNotExist) {
		t.Fatalf("Get error = %v, want ErrResourceDoesNotExist", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("destination left behind: %v", err)
	}
}

func TestStream(t *testing.T) {
	w, fake := newFakeWagon(t)
	fake.put("readme.txt", "hello azure")

	var buf bytes.Buffer
	n, err := w.Stream(context.Background(), "readme.txt", &buf)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if n != int64(len("hello azure")) || buf.String() != "hello azure" {
		t.Errorf("Stream = %d, %q", n, buf.String())
	}
}

func TestPutStream(t *testing.T) {
	w, fake := newFakeWagon(t)
	body := strings.Repeat("x", 4096)

	if err := w.PutStream(context.Background(), "blobs/data.bin", strings.NewReader(body), int64(len(body)), ""); err != nil {
		t.Fatalf("PutStream: %v", err)
	}
	if got, _ := fake.blob("blobs/data.bin"); got != body {
		t.Errorf("stored %d bytes, want %d", len(got), len(body))
	}
}

func TestGetFileList(t *testing.T) {
	w, fake := newFakeWagon(t)
	fake.put("path/to/first.txt", "abcde")
	fake.put("path/to/second.txt", "defgh")
	fake.put("path/other/third.txt", "xyz")
	fake.put("another/path/here.txt", "12345")

	tests := []struct {
		dir  string
		want []string
	}{
		{"", []string{"another/", "path/"}},
		{"path", []string{"other/", "to/"}},
		{"path/to/", []string{"first.txt", "second.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			got, err := w.GetFileList(context.Background(), tt.dir)
			if err != nil {
				t.Fatalf("GetFileList: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("GetFileList(%q) = %v, want %v", tt.dir, got, tt.want)
			}
		})
	}

	if _, err := w.GetFileList(context.Background(), "nothing/here"); !errors.Is(err, base.ErrResourceDoesNotExist) {
		t.Errorf("empty listing error = %v, want ErrResourceDoesNotExist", err)
	}
}

func TestPutDirectory(t *testing.T) {
	w, fake := newFakeWagon(t)
	dir := t.TempDir()
	files := map[string]string{
		"app.jar":           "jar",
		"app.pom":           "pom",
		"docs/index.html":   "<html/>",
		"docs/api/app.html": "api",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.PutDirectory(context.Background(), dir, "site/1.0"); err != nil {
		t.Fatalf("PutDirectory: %v", err)
	}
	for name, content := range files {
		if got, ok := fake.blob("site/1.0/" + name); !ok || got != content {
			t.Errorf("blob %s = %q, %v", name, got, ok)
		}
	}
}

func TestConnect_EndpointAndSharedKey(t *testing.T) {
	fake := newFakeAzure("artifacts")
	fake.put("releases/app.jar", "jar")
	srv := newServer(t, fake)

	repo := mustRepo(t, "azureblob://devstoreaccount1/artifacts/releases?endpoint="+url.QueryEscape(srv))
	w := New()
	w.SetLogger(logger.Nop())
	w.SetRetryConfig(sdk.NoRetryConfig())

	auth := &base.AuthenticationInfo{UserName: DevstoreAccount, Password: DevstoreKey}
	if err := w.Connect(context.Background(), repo, base.WithAuthentication(auth)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer w.Disconnect(context.Background())

	got, err := w.ResourceExists(context.Background(), "app.jar")
	if err != nil || !got {
		t.Fatalf("ResourceExists = %v, %v", got, err)
	}
}

func TestConnect_CreateContainer(t *testing.T) {
	fake := newFakeAzure("fresh")
	fake.containerExists = false
	srv := newServer(t, fake)

	repo := mustRepo(t, "azureblob://acct/fresh?emulated=true&create_container=true&endpoint="+url.QueryEscape(srv))
	w := New()
	w.SetLogger(logger.Nop())
	if err := w.Connect(context.Background(), repo); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !fake.hasContainer() {
		t.Error("container was not created")
	}
}

func TestConnect_MissingContainer(t *testing.T) {
	fake := newFakeAzure("absent")
	fake.containerExists = false
	srv := newServer(t, fake)

	repo := mustRepo(t, "azureblob://acct/absent?emulated=true&endpoint="+url.QueryEscape(srv))
	w := New()
	w.SetLogger(logger.Nop())
	err := w.Connect(context.Background(), repo)
	if !errors.Is(err, base.ErrConnection) {
		t.Fatalf("Connect error = %v, want ErrConnection", err)
	}
	if w.IsConnected() {
		t.Error("wagon should not be connected")
	}
}

func TestConnect_Forbidden(t *testing.T) {
	fake := newFakeAzure("artifacts")
	fake.fail(http.StatusForbidden, "AuthenticationFailed")
	srv := newServer(t, fake)

	repo := mustRepo(t, "azureblob://acct/artifacts?emulated=true&endpoint="+url.QueryEscape(srv))
	w := New()
	w.SetLogger(logger.Nop())

	sessions := &sdk.RecordingSessionListener{}
	w.AddSessionListener(sessions)

	err := w.Connect(context.Background(), repo)
	if !errors.Is(err, base.ErrAuthentication) {
		t.Fatalf("Connect error = %v, want ErrAuthentication", err)
	}
	want := []base.SessionEventType{base.SessionOpening, base.SessionConnectionRefused}
	if got := sessions.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("session events = %v, want %v", got, want)
	}
}

func TestNewContainerClient_NoCredentials(t *testing.T) {
	t.Setenv(EnvConnectionString, "")
	repo := mustRepo(t, "azureblob://acct/artifacts")

	_, err := NewContainerClient(repo, nil, nil)
	if !errors.Is(err, base.ErrAuthentication) {
		t.Fatalf("error = %v, want ErrAuthentication", err)
	}
}

func TestNewContainerClient_URLs(t *testing.T) {
	t.Setenv(EnvConnectionString, "")
	tests := []struct {
		name string
		url  string
		auth *base.AuthenticationInfo
		want string
	}{
		{
			name: "shared key",
			url:  "azureblob://myaccount/artifacts/releases",
			auth: &base.AuthenticationInfo{UserName: "myaccount", Password: DevstoreKey},
			want: "https://myaccount.blob.core.windows.net/artifacts",
		},
		{
			name: "account from auth",
			url:  "azureblob://ignored/artifacts",
			auth: &base.AuthenticationInfo{UserName: "other", Password: DevstoreKey},
			want: "https://other.blob.core.windows.net/artifacts",
		},
		{
			name: "emulated",
			url:  "azureblob://local/artifacts?emulated=true",
			want: DevstoreEndpoint + "/artifacts",
		},
		{
			name: "sas token",
			url:  "azureblob://myaccount/artifacts?sas_token=" + url.QueryEscape("?sv=2022-11-02&sig=abc"),
			want: "https://myaccount.blob.core.windows.net/artifacts?sv=2022-11-02&sig=abc",
		},
		{
			name: "connection string",
			url: "azureblob://ignored/artifacts?connection_string=" + url.QueryEscape(
				"DefaultEndpointsProtocol=https;AccountName=cs;AccountKey="+DevstoreKey+";EndpointSuffix=core.windows.net"),
			want: "https://cs.blob.core.windows.net/artifacts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewContainerClient(mustRepo(t, tt.url), tt.auth, nil)
			if err != nil {
				t.Fatalf("NewContainerClient: %v", err)
			}
			if got := c.URL(); got != tt.want {
				t.Errorf("URL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAccountFromURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://myaccount.blob.core.windows.net/artifacts", "myaccount"},
		{"http://127.0.0.1:10000/devstoreaccount1/artifacts", "devstoreaccount1"},
		{"http://127.0.0.1:8080/artifacts", "127.0.0.1"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		if err != nil {
			t.Fatal(err)
		}
		if got := accountFromURL(u); got != tt.want {
			t.Errorf("accountFromURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestAppendSASToken(t *testing.T) {
	tests := []struct {
		url, token, want string
	}{
		{"https://a/c", "sv=1&sig=x", "https://a/c?sv=1&sig=x"},
		{"https://a/c", "?sv=1", "https://a/c?sv=1"},
		{"https://a/c?comp=list", "sv=1", "https://a/c?comp=list&sv=1"},
	}
	for _, tt := range tests {
		if got := appendSASToken(tt.url, tt.token); got != tt.want {
			t.Errorf("appendSASToken(%q, %q) = %q, want %q", tt.url, tt.token, got, tt.want)
		}
	}
}

func newServer(t *testing.T, fake *fakeAzure) string {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return srv.URL
}

func mustRepo(t *testing.T, raw string) *base.Repository {
	t.Helper()
	repo, err := base.ParseRepository("test", raw)
	if err != nil {
		t.Fatalf("ParseRepository(%q): %v", raw, err)
	}
	return repo
}
