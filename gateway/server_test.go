// Copyright 2025 The blobwagon Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosmiranda/blobwagon/shared/logger"
	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/config"
	"github.com/carlosmiranda/blobwagon/wagons/registry"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

type fakeRepos struct {
	wagons map[string]base.Wagon
}

func (f *fakeRepos) Get(_ context.Context, id string) (base.Wagon, error) {
	w, ok := f.wagons[id]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", registry.ErrUnknownRepository, id)
	}
	return w, nil
}

func (f *fakeRepos) List() []string {
	ids := make([]string, 0, len(f.wagons))
	for id := range f.wagons {
		ids = append(ids, id)
	}
	return ids
}

func newWagon(t *testing.T, id string, store sdk.Store) *sdk.BaseWagon {
	t.Helper()
	repo, err := base.ParseRepository(id, "mem://"+id)
	require.NoError(t, err)
	w := sdk.NewBaseWagonWithStore(base.ProtocolMemory, repo, store)
	w.SetRetryConfig(sdk.NoRetryConfig())
	w.SetLogger(logger.Nop())
	return w
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *sdk.MemoryStore) {
	t.Helper()
	store := sdk.NewMemoryStore()
	store.PutObject("org/app/1.0/app-1.0.jar", []byte("jar-bytes"))
	store.PutObject("org/app/1.0/app-1.0.pom", []byte("<project/>"))
	store.PutObject("readme.txt", []byte("hello"))

	repos := &fakeRepos{wagons: map[string]base.Wagon{"releases": newWagon(t, "releases", store)}}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	srv := httptest.NewServer(New(repos, opts).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func do(t *testing.T, method, url string, body io.Reader, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"circuit open", &sdk.CircuitBreakerOpenError{Name: "r"}, http.StatusServiceUnavailable},
		{"unknown repository", fmt.Errorf("%w: x", registry.ErrUnknownRepository), http.StatusNotFound},
		{"invalid name", base.NewResourceError("r", "Get", base.ErrTransferFailed, "a\\b", fmt.Errorf("%w: backslash", base.ErrInvalidResourceName)), http.StatusBadRequest},
		{"missing", base.NewResourceError("r", "Get", base.ErrResourceDoesNotExist, "a", nil), http.StatusNotFound},
		{"authorization", base.NewResourceError("r", "Get", base.ErrAuthorization, "a", nil), http.StatusForbidden},
		{"not connected", base.NewWagonError("r", "Get", base.ErrNotConnected, "not connected", nil), http.StatusServiceUnavailable},
		{"connection", base.NewWagonError("r", "Connect", base.ErrConnection, "refused", nil), http.StatusServiceUnavailable},
		{"transfer", base.NewResourceError("r", "Get", base.ErrTransferFailed, "a", errors.New("boom")), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp := do(t, http.MethodGet, srv.URL+"/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, []string{"releases"}, health.Repositories)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestServer_RequestIDPropagated(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	resp := do(t, http.MethodGet, srv.URL+"/health", nil, map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", resp.Header.Get(RequestIDHeader))
}

func TestServer_Download(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp := do(t, http.MethodGet, srv.URL+"/repositories/releases/org/app/1.0/app-1.0.jar", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "jar-bytes", readBody(t, resp))
	assert.Equal(t, "9", resp.Header.Get("Content-Length"))
	assert.NotEmpty(t, resp.Header.Get("Last-Modified"))
}

func TestServer_Head(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp := do(t, http.MethodHead, srv.URL+"/repositories/releases/readme.txt", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(5), resp.ContentLength)

	resp = do(t, http.MethodHead, srv.URL+"/repositories/releases/missing.txt", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Errors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing resource", "/repositories/releases/org/app/2.0/app-2.0.jar", http.StatusNotFound},
		{"unknown repository", "/repositories/snapshots/readme.txt", http.StatusNotFound},
		{"invalid name", "/repositories/releases/bad%5Cname.txt", http.StatusBadRequest},
		{"missing directory", "/repositories/releases/nothing/here/", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodGet, srv.URL+tt.path, nil, nil)
			assert.Equal(t, tt.want, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, resp.Header.Get(RequestIDHeader), body.RequestID)
		})
	}
}

func TestServer_List(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp := do(t, http.MethodGet, srv.URL+"/repositories/releases/", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var root listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&root))
	assert.Equal(t, []string{"org/", "readme.txt"}, root.Entries)

	resp = do(t, http.MethodGet, srv.URL+"/repositories/releases/org/app/1.0/", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dir listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dir))
	assert.Equal(t, "org/app/1.0/", dir.Directory)
	assert.Equal(t, []string{"app-1.0.jar", "app-1.0.pom"}, dir.Entries)
}

func TestServer_Upload(t *testing.T) {
	srv, store := newTestServer(t, Options{})

	resp := do(t, http.MethodPut, srv.URL+"/repositories/releases/org/app/1.1/app-1.1.jar",
		strings.NewReader("new-jar"), map[string]string{"Content-Type": "application/java-archive"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var put putResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&put))
	assert.Equal(t, int64(7), put.Size)

	data, ok := store.Object("org/app/1.1/app-1.1.jar")
	require.True(t, ok)
	assert.Equal(t, "new-jar", string(data))

	resp = do(t, http.MethodGet, srv.URL+"/repositories/releases/org/app/1.1/app-1.1.jar", nil, nil)
	assert.Equal(t, "application/java-archive", resp.Header.Get("Content-Type"))
	assert.Equal(t, "new-jar", readBody(t, resp))
}

func TestServer_UploadToDirectory(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	resp := do(t, http.MethodPut, srv.URL+"/repositories/releases/org/", strings.NewReader("x"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_BackendAuthorizationFailure(t *testing.T) {
	failing := sdk.NewFailingStore(nil)
	failing.StatErr = fmt.Errorf("%w: denied", base.ErrAuthorization)
	repos := &fakeRepos{wagons: map[string]base.Wagon{"locked": newWagon(t, "locked", failing)}}
	srv := httptest.NewServer(New(repos, Options{Logger: logger.Nop()}).Handler())
	defer srv.Close()

	resp := do(t, http.MethodGet, srv.URL+"/repositories/locked/a.txt", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_CircuitBreaker(t *testing.T) {
	failing := sdk.NewFailingStore(nil)
	failing.StatErr = errors.New("backend down")
	repos := &fakeRepos{wagons: map[string]base.Wagon{"flaky": newWagon(t, "flaky", failing)}}
	srv := httptest.NewServer(New(repos, Options{
		Logger:          logger.Nop(),
		BreakerFailures: 2,
		BreakerReset:    time.Minute,
	}).Handler())
	defer srv.Close()

	for i := 0; i < 2; i++ {
		resp := do(t, http.MethodGet, srv.URL+"/repositories/flaky/a.txt", nil, nil)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	}

	resp := do(t, http.MethodGet, srv.URL+"/repositories/flaky/a.txt", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 2, failing.Calls(sdk.OpStat), "open circuit must not reach the backend")

	resp = do(t, http.MethodGet, srv.URL+"/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, map[string]string{"flaky": "open"}, health.Circuits)
}

func TestServer_MissingResourcesDoNotOpenCircuit(t *testing.T) {
	srv, _ := newTestServer(t, Options{BreakerFailures: 1})
	for i := 0; i < 3; i++ {
		resp := do(t, http.MethodGet, srv.URL+"/repositories/releases/missing.txt", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, Options{Collector: sdk.NewCollector("blobwagon")})

	do(t, http.MethodGet, srv.URL+"/health", nil, nil)
	resp := do(t, http.MethodGet, srv.URL+"/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `blobwagon_gateway_requests_total{code="200",method="GET"}`)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, Options{CORSOrigins: []string{"https://repo.example.com"}})

	resp := do(t, http.MethodOptions, srv.URL+"/repositories/releases/readme.txt", nil, map[string]string{
		"Origin":                        "https://repo.example.com",
		"Access-Control-Request-Method": "PUT",
	})
	assert.Equal(t, "https://repo.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_WithRegistry(t *testing.T) {
	ctx := context.Background()
	sdk.NamedMemoryStore("gateway-registry").PutObject("lib/a.jar", []byte("a"))

	reg := registry.New()
	reg.SetLogger(logger.Nop())
	repo, err := base.ParseRepository("central", "mem://gateway-registry")
	require.NoError(t, err)
	_, err = reg.Add(ctx, &config.Settings{Repository: repo, MaxRetries: -1})
	require.NoError(t, err)
	defer reg.Close(ctx)

	srv := httptest.NewServer(New(reg, Options{Logger: logger.Nop()}).Handler())
	defer srv.Close()

	resp := do(t, http.MethodGet, srv.URL+"/repositories/central/lib/a.jar", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "a", readBody(t, resp))
}
