package httprpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/pitgo/codec"
	"github.com/hupe1980/pitgo/core"
	"github.com/hupe1980/pitgo/node"
	"github.com/hupe1980/pitgo/transport"
)

const (
	contentTypeJSON        = "application/json"
	defaultShutdownTimeout = 5 * time.Second
)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Codec for request/response bodies. nil uses codec.Default.
	Codec codec.Codec

	// Logger for request-level failures. nil disables logging.
	Logger *slog.Logger
}

// Server exposes one node's context operations over HTTP.
type Server struct {
	node       *node.Node
	codec      codec.Codec
	logger     *slog.Logger
	httpServer *http.Server
	addr       string
}

// NewServer creates a server for the given node listening on addr.
func NewServer(n *node.Node, addr string, optFns ...func(*ServerOptions)) *Server {
	opts := ServerOptions{Codec: codec.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	return &Server{
		node:   n,
		codec:  opts.Codec,
		logger: opts.Logger,
		addr:   addr,
	}
}

// Handler builds the chi router. Exposed for tests via httptest.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/contexts/open", s.handleOpen)
	r.Post("/contexts/query", s.handleQuery)
	r.Post("/contexts/renew", s.handleRenew)
	r.Post("/contexts/close", s.handleClose)
	r.Post("/search", s.handleSearch)

	return r
}

// Start begins serving. Non-blocking; errors after startup are logged.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	ln := s.httpServer
	go func() {
		if err := ln.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.logger != nil {
				s.logger.Error("httprpc server error", "error", err)
			}
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("httprpc: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.node.Stats())
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req transport.OpenRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	key, err := s.node.OpenLocal(req.Partitions, req.KeepAlive)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transport.OpenResponse{Key: key})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req transport.QueryRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	q, err := req.Query.Build()
	if err != nil {
		s.writeWire(w, http.StatusBadRequest, wireError{Type: errBadRequest, Reason: err.Error()})
		return
	}
	res, err := s.node.QueryLocal(req.Key, q, req.KeepAlive)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transport.QueryResponse{Result: res})
}

// renewRequest is the body of an explicit keepalive extension.
type renewRequest struct {
	Key       string        `json:"key"`
	KeepAlive time.Duration `json:"keep_alive"`
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if err := s.node.RenewLocal(core.ContextKey(req.Key), req.KeepAlive); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req transport.CloseRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, transport.CloseResponse{Freed: s.node.CloseLocal(req.Key)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req transport.SearchRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	q, err := req.Query.Build()
	if err != nil {
		s.writeWire(w, http.StatusBadRequest, wireError{Type: errBadRequest, Reason: err.Error()})
		return
	}
	res, err := s.node.Search(req.Partitions, q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, transport.SearchResponse{Result: res})
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err == nil {
		err = s.codec.Unmarshal(body, v)
	}
	if err != nil {
		s.writeWire(w, http.StatusBadRequest, wireError{Type: errBadRequest, Reason: err.Error()})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := s.codec.Marshal(v)
	if err != nil {
		s.writeWire(w, http.StatusInternalServerError, wireError{Type: errInternal, Reason: err.Error()})
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	we := toWire(err)
	if errors.Is(err, node.ErrClosed) {
		we = wireError{Type: errNodeClosed, Reason: err.Error()}
	}
	s.writeWire(w, statusFor(we.Type), we)
	if s.logger != nil {
		s.logger.Debug("httprpc request failed", "type", we.Type, "reason", we.Reason)
	}
}

func (s *Server) writeWire(w http.ResponseWriter, status int, we wireError) {
	data, _ := s.codec.Marshal(errorEnvelope{Error: we})
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func statusFor(wireType string) int {
	switch wireType {
	case errContextMissing, errPartitionNotFound:
		return http.StatusNotFound
	case errInvalidKeepAlive, errBadRequest:
		return http.StatusBadRequest
	case errTooManyContexts, errThrottled:
		return http.StatusTooManyRequests
	case errNodeClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
