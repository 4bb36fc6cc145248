// Copyright 2025 The blobwagon Authors
// SPDX-License-Identifier: Apache-2.0

package azureblob

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

type fakeBlob struct {
	data        []byte
	contentType string
	modified    time.Time
}

// fakeAzure serves the subset of the Blob REST API the wagon uses
type fakeAzure struct {
	mu              sync.Mutex
	container       string
	containerExists bool
	blobs           map[string]fakeBlob
	blocks          map[string][]byte
	calls           map[string]int
	failStatus      int
	failCode        string
	failRemaining   int
	retryAfter      string
	now             time.Time
}

func newFakeAzure(containerName string) *fakeAzure {
	return &fakeAzure{
		container:       containerName,
		containerExists: true,
		blobs:           make(map[string]fakeBlob),
		blocks:          make(map[string][]byte),
		calls:           make(map[string]int),
		now:             time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeAzure) put(name, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[name] = fakeBlob{data: []byte(data), contentType: "text/plain", modified: f.now}
}

func (f *fakeAzure) blob(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[name]
	return string(b.data), ok
}

func (f *fakeAzure) hasContainer() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containerExists
}

func (f *fakeAzure) fail(status int, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus, f.failCode = status, code
	f.failRemaining = -1
}

// throttle fails the next n requests with status, sending retryAfter as the
// Retry-After header when it is set.
func (f *fakeAzure) throttle(n, status int, code, retryAfter string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus, f.failCode = status, code
	f.failRemaining = n
	f.retryAfter = retryAfter
}

func (f *fakeAzure) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("x-ms-error-code", code)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><Error><Code>%s</Code><Message>fake</Message></Error>`, code)
}

func (f *fakeAzure) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.Method]++

	if f.failStatus != 0 && f.failRemaining != 0 {
		if f.failRemaining > 0 {
			f.failRemaining--
		}
		if f.retryAfter != "" {
			w.Header().Set("Retry-After", f.retryAfter)
		}
		writeError(w, f.failStatus, f.failCode)
		return
	}

	containerName, blobName, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	q := r.URL.Query()

	if containerName != f.container || (!f.containerExists && !(r.Method == http.MethodPut && blobName == "")) {
		writeError(w, http.StatusNotFound, "ContainerNotFound")
		return
	}

	if blobName == "" {
		f.serveContainer(w, r, q.Get("comp"), q.Get("prefix"))
		return
	}

	switch r.Method {
	case http.MethodHead, http.MethodGet:
		b, ok := f.blobs[blobName]
		if !ok {
			writeError(w, http.StatusNotFound, "BlobNotFound")
			return
		}
		h := w.Header()
		h.Set("Content-Length", fmt.Sprint(len(b.data)))
		h.Set("Content-Type", b.contentType)
		h.Set("Last-Modified", b.modified.Format(http.TimeFormat))
		h.Set("ETag", `"0x8DC0000000000"`)
		h.Set("x-ms-blob-type", "BlockBlob")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(b.data)
		}
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		switch q.Get("comp") {
		case "block":
			f.blocks[blobName+"|"+q.Get("blockid")] = body
		case "blocklist":
			var list struct {
				Latest      []string `xml:"Latest"`
				Uncommitted []string `xml:"Uncommitted"`
				Committed   []string `xml:"Committed"`
			}
			if err := xml.Unmarshal(body, &list); err != nil {
				writeError(w, http.StatusBadRequest, "InvalidXmlDocument")
				return
			}
			var data []byte
			for _, id := range append(append(list.Latest, list.Uncommitted...), list.Committed...) {
				data = append(data, f.blocks[blobName+"|"+id]...)
				delete(f.blocks, blobName+"|"+id)
			}
			f.blobs[blobName] = fakeBlob{data: data, contentType: r.Header.Get("x-ms-blob-content-type"), modified: f.now}
		default:
			ct := r.Header.Get("x-ms-blob-content-type")
			if ct == "" {
				ct = r.Header.Get("Content-Type")
			}
			f.blobs[blobName] = fakeBlob{data: body, contentType: ct, modified: f.now}
		}
		w.Header().Set("ETag", `"0x8DC0000000001"`)
		w.Header().Set("Last-Modified", f.now.Format(http.TimeFormat))
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeAzure) serveContainer(w http.ResponseWriter, r *http.Request, comp, prefix string) {
	switch {
	case r.Method == http.MethodHead || (r.Method == http.MethodGet && comp == ""):
		w.Header().Set("Last-Modified", f.now.Format(http.TimeFormat))
		w.Header().Set("ETag", `"0x8DC000000000C"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		if f.containerExists {
			writeError(w, http.StatusConflict, "ContainerAlreadyExists")
			return
		}
		f.containerExists = true
		w.WriteHeader(http.StatusCreated)
	case r.Method == http.MethodGet && comp == "list":
		var names []string
		for name := range f.blobs {
			if strings.HasPrefix(name, prefix) {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
		fmt.Fprintf(&sb, `<EnumerationResults ServiceEndpoint="http://%s/" ContainerName="%s">`, r.Host, f.container)
		fmt.Fprintf(&sb, `<Prefix>%s</Prefix><Blobs>`, prefix)
		for _, name := range names {
			b := f.blobs[name]
			fmt.Fprintf(&sb, `<Blob><Name>%s</Name><Properties><Last-Modified>%s</Last-Modified><Etag>0x8DC0000000000</Etag>`+
				`<Content-Length>%d</Content-Length><Content-Type>%s</Content-Type><BlobType>BlockBlob</BlobType></Properties></Blob>`,
				name, b.modified.Format(http.TimeFormat), len(b.data), b.contentType)
		}
		sb.WriteString(`</Blobs><NextMarker /></EnumerationResults>`)

		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, sb.String())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// startFakeAzure returns the fake and a container client pointing at it
func startFakeAzure(t *testing.T, containerName string) (*fakeAzure, *httptest.Server, *container.Client) {
	t.Helper()
	fake := newFakeAzure(containerName)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := container.NewClientWithNoCredential(srv.URL+"/"+containerName, clientOptions(nil))
	if err != nil {
		t.Fatalf("NewClientWithNoCredential: %v", err)
	}
	return fake, srv, c
}
