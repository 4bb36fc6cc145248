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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/carlosmiranda/blobwagon/shared/logger"
	"github.com/carlosmiranda/blobwagon/wagons/base"
	"github.com/carlosmiranda/blobwagon/wagons/sdk"
)

// RequestIDHeader carries the id assigned to every request
const RequestIDHeader = "X-Request-ID"

// Repositories resolves repository ids to connected wagons.
// *registry.Registry satisfies it.
type Repositories interface {
	Get(ctx context.Context, id string) (base.Wagon, error)
	List() []string
}

// Options configures a Server
type Options struct {
	JWTSecret       string
	CORSOrigins     []string
	Collector       *sdk.Collector
	Logger          *logger.Logger
	BreakerFailures int           // Consecutive failures that open a repository circuit
	BreakerReset    time.Duration // How long a circuit stays open
}

// Server is the HTTP repository gateway
type Server struct {
	repos     Repositories
	jwtSecret []byte
	logger    *logger.Logger
	router    *mux.Router
	handler   http.Handler
	metrics   *prometheus.Registry
	requests  *prometheus.CounterVec

	breakerFailures int
	breakerReset    time.Duration
	breakers        map[string]*sdk.CircuitBreaker
	mu              sync.Mutex
}

// New builds a server over repos
func New(repos Repositories, opts Options) *Server {
	s := &Server{
		repos:           repos,
		jwtSecret:       []byte(opts.JWTSecret),
		logger:          opts.Logger,
		router:          mux.NewRouter(),
		metrics:         prometheus.NewRegistry(),
		breakerFailures: opts.BreakerFailures,
		breakerReset:    opts.BreakerReset,
		breakers:        make(map[string]*sdk.CircuitBreaker),
	}
	if s.logger == nil {
		s.logger = logger.New("gateway")
	}
	if s.breakerFailures <= 0 {
		s.breakerFailures = 5
	}
	if s.breakerReset <= 0 {
		s.breakerReset = 30 * time.Second
	}

	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blobwagon",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "HTTP requests handled by the gateway",
	}, []string{"method", "code"})
	s.metrics.MustRegister(s.requests)
	if opts.Collector != nil {
		s.metrics.MustRegister(opts.Collector)
	}

	s.router.Use(s.requestID)
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})).Methods("GET")

	repo := s.router.PathPrefix("/repositories/{id}").Subrouter()
	repo.Use(s.authenticate)
	repo.HandleFunc("/", s.listHandler).Methods("GET")
	repo.HandleFunc("/{path:.+}", s.getHandler).Methods("GET", "HEAD")
	repo.HandleFunc("/{path:.+}", s.putHandler).Methods("PUT")

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "HEAD", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{RequestIDHeader, "Last-Modified", "ETag"},
		AllowCredentials: len(opts.CORSOrigins) > 0,
	})
	s.handler = c.Handler(s.router)
	return s
}

// Handler returns the root handler with CORS applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", map[string]interface{}{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("gateway shutting down", nil)
		return srv.Shutdown(shutdownCtx)
	}
}

// breaker returns the circuit breaker of repository id
func (s *Server) breaker(id string) *sdk.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[id]
	if !ok {
		cb = sdk.NewCircuitBreaker(id, s.breakerFailures, s.breakerReset)
		cb.SetFailureCondition(isBackendFailure)
		s.breakers[id] = cb
	}
	return cb
}

func (s *Server) circuitStates() map[string]sdk.CircuitState {
	s.mu.Lock()
	breakers := make(map[string]*sdk.CircuitBreaker, len(s.breakers))
	for id, cb := range s.breakers {
		breakers[id] = cb
	}
	s.mu.Unlock()

	states := make(map[string]sdk.CircuitState, len(breakers))
	for id, cb := range breakers {
		states[id] = cb.State()
	}
	return states
}

// isBackendFailure reports errors that say the backend is unhealthy
func isBackendFailure(err error) bool {
	return errors.Is(err, base.ErrTransferFailed) || errors.Is(err, base.ErrConnection)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// requestID tags the request with an id and logs its outcome
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		s.requests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		s.logger.Debug("request", map[string]interface{}{
			"request_id":  id,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if r.Method == http.MethodHead {
		return
	}
	resp := errorResponse{Error: message, RequestID: w.Header().Get(RequestIDHeader)}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.ErrorWithCause("failed to encode error response", err, nil)
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.ErrorWithCause("failed to encode response", err, nil)
	}
}
