// Package server wires the six inbound routes (spec §6) onto a chi
// router: the two chat-completion endpoints dispatch through pkg/pipeline,
// the four catalog endpoints read through pkg/catalog's cache contract.
// Grounded on examples/chi-server/main.go (chi.NewRouter +
// chi/middleware.Recoverer + go-chi/cors.Handler + a plain
// http.ListenAndServe-style main), generalized from one /generate route
// to the proxy's six routes and from log.Fatal startup to explicit
// Start/Shutdown hooks (spec §6: "the core exposes start and shutdown
// hooks only; there is no CLI surface within scope").
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relaybridge/toolbridge/pkg/catalog"
	"github.com/relaybridge/toolbridge/pkg/converter"
	"github.com/relaybridge/toolbridge/pkg/pipeline"
)

// Config configures a Server.
type Config struct {
	Addr string

	// Pipeline runs request/response translation for the configured
	// backend.
	Pipeline *pipeline.Pipeline

	// Catalog caches upstream model lists. May be nil, in which case the
	// four catalog routes return 502.
	Catalog *catalog.Cache

	// ModelsFetch retrieves the current model list from the external
	// catalog service, in whatever dialect shape the calling route
	// expects. May be nil alongside Catalog.
	ModelsFetch catalog.FetchFunc

	// BackendMode labels the catalog cache key (e.g. "oai", "oll"), kept
	// distinct from client dialect since the cache is per-backend, not
	// per-inbound-route.
	BackendMode string
}

// Server exposes the six routes described by spec §6 and nothing else:
// no CLI, no admin surface, start/shutdown only.
type Server struct {
	cfg        Config
	httpServer *http.Server
}

// New builds a Server with its router fully wired but not yet listening.
func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	s := &Server{cfg: cfg}

	r.Post("/v1/chat/completions", s.handleChat(converter.DialectOAI))
	r.Post("/api/chat", s.handleChat(converter.DialectOLL))
	r.Get("/v1/models", s.handleModels)
	r.Get("/v1/models/{id}", s.handleModelByID)
	r.Get("/api/tags", s.handleTags)
	r.Post("/api/show", s.handleShow)

	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: r}
	return s
}

// Handler exposes the underlying http.Handler, chiefly for tests that
// want to drive the router without a live listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving HTTP until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleChat(clientDialect converter.Dialect) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeUnary(w, pipeline.ErrorResult(clientDialect, err))
			return
		}

		clientReq, err := s.cfg.Pipeline.DecodeClientRequest(clientDialect, body)
		if err != nil {
			writeUnary(w, pipeline.ErrorResult(clientDialect, err))
			return
		}

		auth := r.Header.Get("Authorization")

		if !clientReq.Stream {
			result := s.cfg.Pipeline.HandleUnary(r.Context(), clientReq, clientDialect, auth, r.Header)
			writeUnary(w, result)
			return
		}

		if clientDialect == converter.DialectOAI {
			w.Header().Set("Content-Type", "text/event-stream")
		} else {
			w.Header().Set("Content-Type", "application/x-ndjson")
		}
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		flusher, _ := w.(http.Flusher)
		sw := &flushWriter{w: w, flusher: flusher}
		_ = s.cfg.Pipeline.HandleStream(r.Context(), clientReq, clientDialect, auth, r.Header, sw)
	}
}

func writeUnary(w http.ResponseWriter, result pipeline.UnaryResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)
}

// flushWriter flushes after every write so SSE/NDJSON frames reach the
// client as they are produced rather than buffering until the handler
// returns.
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (f *flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return n, err
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	body, err := s.fetchCatalog(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	s.handleModels(w, r)
}

func (s *Server) handleModelByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := s.fetchCatalog(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	var parsed struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, entry := range parsed.Data {
			var e struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(entry, &e) == nil && e.ID == id {
				w.Header().Set("Content-Type", "application/json")
				w.Write(entry)
				return
			}
		}
	}
	http.Error(w, "model not found", http.StatusNotFound)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	body, err := io.ReadAll(r.Body)
	if err == nil {
		json.Unmarshal(body, &req)
	}

	catalogBody, err := s.fetchCatalog(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	var parsed struct {
		Models []json.RawMessage `json:"models"`
	}
	if err := json.Unmarshal(catalogBody, &parsed); err == nil {
		for _, entry := range parsed.Models {
			var m struct {
				Name string `json:"name"`
			}
			if json.Unmarshal(entry, &m) == nil && m.Name == req.Model {
				w.Header().Set("Content-Type", "application/json")
				w.Write(entry)
				return
			}
		}
	}
	http.Error(w, "model not found", http.StatusNotFound)
}

func (s *Server) fetchCatalog(r *http.Request) ([]byte, error) {
	if s.cfg.Catalog == nil || s.cfg.ModelsFetch == nil {
		return nil, errNotConfigured
	}
	key := catalog.Key(s.cfg.BackendMode, r.Header.Get("Authorization"))
	return s.cfg.Catalog.Get(r.Context(), key, s.cfg.ModelsFetch)
}

var errNotConfigured = errCatalogNotConfigured{}

type errCatalogNotConfigured struct{}

func (errCatalogNotConfigured) Error() string { return "model catalog not configured" }
