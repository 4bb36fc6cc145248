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

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/registry"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// statusFor maps a wagon error to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, sdk.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, registry.ErrUnknownRepository):
		return http.StatusNotFound
	case errors.Is(err, base.ErrInvalidResourceName):
		return http.StatusBadRequest
	case errors.Is(err, base.ErrResourceDoesNotExist), errors.Is(err, base.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, base.ErrAuthorization), errors.Is(err, base.ErrAuthentication):
		return http.StatusForbidden
	case errors.Is(err, base.ErrNotConnected), errors.Is(err, base.ErrConnection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

type healthResponse struct {
	Status       string            `json:"status"`
	Repositories []string          `json:"repositories"`
	Circuits     map[string]string `json:"circuits,omitempty"`
}

// healthHandler reports "degraded" while any repository circuit is open
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Repositories: s.repos.List()}
	for id, state := range s.circuitStates() {
		if resp.Circuits == nil {
			resp.Circuits = make(map[string]string)
		}
		resp.Circuits[id] = state.String()
		if state == sdk.CircuitOpen {
			resp.Status = "degraded"
		}
	}
	s.sendJSON(w, resp)
}

type listResponse struct {
	Repository string   `json:"repository"`
	Directory  string   `json:"directory"`
	Entries    []string `json:"entries"`
}

type putResponse struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
}

// wagon resolves the repository of the request and checks access
func (s *Server) wagon(w http.ResponseWriter, r *http.Request, write bool) (sdk.StreamingWagon, string, bool) {
	id := mux.Vars(r)["id"]
	if code, msg := s.authorize(r, id, write); code != 0 {
		s.sendError(w, r, msg, code)
		return nil, id, false
	}

	wagon, err := s.repos.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, id, "", err)
		return nil, id, false
	}
	sw, ok := wagon.(sdk.StreamingWagon)
	if !ok {
		s.sendError(w, r, fmt.Sprintf("repository '%s' does not support streaming", id), http.StatusNotImplemented)
		return nil, id, false
	}
	return sw, id, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, id, path string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.ErrorWithCause("request failed", err, map[string]interface{}{
			"repository": id,
			"path":       path,
			"request_id": w.Header().Get(RequestIDHeader),
		})
	}
	s.sendError(w, r, err.Error(), code)
}

func (s *Server) listHandler(w http.ResponseWriter, r *http.Request) {
	s.list(w, r, "")
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, dir string) {
	wagon, id, ok := s.wagon(w, r, false)
	if !ok {
		return
	}

	var entries []string
	err := s.breaker(id).Execute(r.Context(), func() error {
		var err error
		entries, err = wagon.GetFileList(r.Context(), dir)
		return err
	})
	if err != nil {
		s.fail(w, r, id, dir, err)
		return
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	s.sendJSON(w, listResponse{Repository: id, Directory: dir, Entries: entries})
}

// getHandler serves GET and HEAD. Paths ending in a slash are listed.
func (s *Server) getHandler(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	if strings.HasSuffix(path, "/") {
		s.list(w, r, path)
		return
	}

	wagon, id, ok := s.wagon(w, r, false)
	if !ok {
		return
	}
	cb := s.breaker(id)

	var info *sdk.ObjectInfo
	err := cb.Execute(r.Context(), func() error {
		var err error
		info, err = wagon.Stat(r.Context(), path)
		return err
	})
	if err != nil {
		s.fail(w, r, id, path, err)
		return
	}

	h := w.Header()
	h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if info.ContentType != "" {
		h.Set("Content-Type", info.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	if !info.LastModified.IsZero() {
		h.Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	if etag := info.ETag; etag != "" {
		if !strings.HasPrefix(etag, `"`) {
			etag = `"` + etag + `"`
		}
		h.Set("ETag", etag)
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	var written int64
	err = cb.Execute(r.Context(), func() error {
		var err error
		written, err = wagon.Stream(r.Context(), path, w)
		return err
	})
	if err != nil {
		if written == 0 {
			for _, k := range []string{"Content-Length", "Content-Type", "Last-Modified", "ETag"} {
				h.Del(k)
			}
			s.fail(w, r, id, path, err)
			return
		}
		// Headers are gone; the client sees a short body
		s.logger.ErrorWithCause("download interrupted", err, map[string]interface{}{
			"repository": id,
			"path":       path,
			"bytes":      written,
		})
	}
}

func (s *Server) putHandler(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	wagon, id, ok := s.wagon(w, r, true)
	if !ok {
		return
	}
	if strings.HasSuffix(path, "/") {
		s.sendError(w, r, "cannot upload to a directory", http.StatusBadRequest)
		return
	}

	size := r.ContentLength
	err := s.breaker(id).Execute(r.Context(), func() error {
		return wagon.PutStream(r.Context(), path, r.Body, size, r.Header.Get("Content-Type"))
	})
	if err != nil {
		s.fail(w, r, id, path, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	s.sendJSON(w, putResponse{Repository: id, Path: path, Size: size})
}
