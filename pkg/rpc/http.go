package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/log"
	"github.com/maxsync/max/pkg/metrics"
)

// HTTPServer serves a dispatcher over HTTP: one request per POST /rpc.
// It additionally exposes GET /healthz and the Prometheus scrape endpoint.
type HTTPServer struct {
	dispatch Dispatch
	server   *http.Server
	addr     string
}

// NewHTTPServer creates an HTTP server for the dispatcher
func NewHTTPServer(dispatch Dispatch) *HTTPServer {
	s := &HTTPServer{dispatch: dispatch}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/rpc", s.handleRPC)
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving on addr
func (s *HTTPServer) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr = listener.Addr().String()
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithComponent("rpc-http").Error().Err(err).Msg("http server exited")
		}
	}()
	log.WithComponent("rpc-http").Info().Str("addr", listener.Addr().String()).Msg("http server listening")
	return nil
}

// Addr returns the bound address (useful when addr used port 0)
func (s *HTTPServer) Addr() string {
	return s.addr
}

// Stop shuts the server down gracefully
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameSize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, Failure("", errdefs.ErrTransportFailed.New(errdefs.Props{
			"detail": fmt.Sprintf("malformed request: %v", err),
		})))
		return
	}

	writeJSON(w, s.dispatch(r.Context(), req))
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	req := Request{ID: "healthz", Target: "", Method: "health"}
	resp := s.dispatch(r.Context(), req)
	if !resp.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithComponent("rpc-http").Error().Err(err).Msg("failed to write response")
	}
}

// HTTPTransport is the caller side of the HTTP flavour: one POST per Send
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport for a remote node's base URL
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// Send posts the request to /rpc and decodes the response
func (t *HTTPTransport) Send(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errdefs.ErrTransportFailed.New(errdefs.Props{"detail": err.Error()})
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/rpc", bytes.NewReader(payload))
	if err != nil {
		return nil, errdefs.ErrTransportFailed.New(errdefs.Props{"detail": err.Error()})
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, errdefs.ErrTransportFailed.New(errdefs.Props{"detail": err.Error()})
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxFrameSize))
	if err != nil {
		return nil, errdefs.ErrTransportFailed.New(errdefs.Props{"detail": err.Error()})
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errdefs.ErrTransportFailed.New(errdefs.Props{
			"detail": fmt.Sprintf("malformed response (status %d): %v", httpResp.StatusCode, err),
		})
	}
	if !resp.OK {
		return nil, resp.Err()
	}
	return resp.Result, nil
}

// Close is a no-op; HTTP connections are pooled by the client
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
