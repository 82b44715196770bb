// Package server exposes the printer bridge over HTTP. Mutating commands
// go through the shared-secret filter; read-only queries stay open.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/det-frontend/printer-module/adapter"
	"github.com/det-frontend/printer-module/bridge"
	"github.com/det-frontend/printer-module/escpos"
)

// ErrUnauthorized is returned to callers of mutating commands that do
// not present the configured shared secret.
var ErrUnauthorized = errors.New("unauthorized")

// Server serves the bridge's command envelopes over HTTP.
type Server struct {
	dispatcher *bridge.Dispatcher
	address    string

	// token is the shared secret required on mutating commands. Empty
	// means all callers are trusted (the documented insecure default).
	token string

	httpServer *http.Server
	mu         sync.Mutex
	running    bool
	logger     logrus.FieldLogger
}

// New creates a new server instance.
func New(dispatcher *bridge.Dispatcher, address, token string, logger logrus.FieldLogger) *Server {
	return &Server{
		dispatcher: dispatcher,
		address:    address,
		token:      token,
		logger:     logger.WithField("component", "server"),
	}
}

// Start starts the HTTP server and blocks until Stop is called.
func (s *Server) Start() error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	return s.serve(listener)
}

// StartAsync starts the HTTP server in a goroutine (non-blocking).
func (s *Server) StartAsync() error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	go func() {
		if err := s.serve(listener); err != nil {
			s.logger.WithError(err).Error("server terminated")
		}
	}()
	return nil
}

func (s *Server) listen() (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	s.httpServer = &http.Server{Handler: s.routes()}
	s.running = true
	if s.token == "" {
		s.logger.Warn("no auth token configured, all callers are trusted")
	}
	s.logger.Infof("listening on %s", listener.Addr())
	return listener, nil
}

func (s *Server) serve(listener net.Listener) error {
	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully, then closes the link.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("stopping server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.dispatcher.CloseLink()
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.address
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /open", s.auth(s.handleOpen))
	mux.HandleFunc("POST /close", s.auth(s.handleClose))
	mux.HandleFunc("POST /write/hex", s.auth(s.handleWriteHex))
	mux.HandleFunc("POST /write/base64", s.auth(s.handleWriteBase64))
	mux.HandleFunc("POST /write/raw", s.auth(s.handleWriteRaw))
	mux.HandleFunc("POST /print/voucher", s.auth(s.handlePrintVoucher))
	mux.HandleFunc("GET /ports", s.handlePorts)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// auth rejects mutating commands that do not carry the shared secret.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && !s.authorized(r) {
			s.writeError(w, ErrUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	presented := r.Header.Get("X-Auth-Token")
	if presented == "" {
		presented = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) == 1
}

type openRequest struct {
	Path string `json:"path"`
	Baud int    `json:"baud"`
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	status, err := s.dispatcher.OpenLink(req.Path, req.Baud)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleClose(w http.ResponseWriter, _ *http.Request) {
	s.dispatcher.CloseLink()
	s.writeJSON(w, http.StatusOK, struct{}{})
}

type writeResponse struct {
	Bytes int `json:"bytes"`
}

func (s *Server) handleWriteHex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hex string `json:"hex"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	n, err := s.dispatcher.WriteHex(req.Hex)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, writeResponse{Bytes: n})
}

func (s *Server) handleWriteBase64(w http.ResponseWriter, r *http.Request) {
	var req struct {
		B64 string `json:"b64"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}
	n, err := s.dispatcher.WriteBase64(req.B64)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, writeResponse{Bytes: n})
}

func (s *Server) handleWriteRaw(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", escpos.ErrMissingPayload, err))
		return
	}
	n, err := s.dispatcher.WriteRaw(body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, writeResponse{Bytes: n})
}

type voucherRequest struct {
	Station escpos.Station `json:"station"`
	Voucher escpos.Voucher `json:"voucher"`
}

func (s *Server) handlePrintVoucher(w http.ResponseWriter, r *http.Request) {
	var req voucherRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	status, err := s.dispatcher.PrintVoucher(req.Station, req.Voucher)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePorts(w http.ResponseWriter, _ *http.Request) {
	ports, err := s.dispatcher.Ports()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ports)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dispatcher.LinkHealth())
}

// decodeBody decodes a JSON envelope, treating an empty body as the
// empty envelope so commands with all-optional fields need no payload.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.writeError(w, fmt.Errorf("%w: malformed JSON body: %v", escpos.ErrInvalidEncoding, err))
	return false
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind, status := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error(kind)
	} else {
		s.logger.WithError(err).Debug(kind)
	}
	s.writeJSON(w, status, errorResponse{Error: kind, Message: err.Error()})
}

// classify maps an error to its taxonomy kind and HTTP status.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized", http.StatusUnauthorized
	case errors.Is(err, escpos.ErrInvalidEncoding):
		return "invalid-encoding", http.StatusBadRequest
	case errors.Is(err, escpos.ErrMissingPayload):
		return "missing-payload", http.StatusBadRequest
	case errors.Is(err, escpos.ErrPayloadTooLarge):
		return "payload-too-large", http.StatusRequestEntityTooLarge
	case errors.Is(err, escpos.ErrInvalidField):
		return "invalid-field", http.StatusBadRequest
	case errors.Is(err, adapter.ErrNotOpen):
		return "not-open", http.StatusConflict
	case errors.Is(err, adapter.ErrOpenFailed):
		return "link-open-failed", http.StatusBadGateway
	case errors.Is(err, adapter.ErrDisconnected):
		return "link-disconnected", http.StatusBadGateway
	default:
		return "internal", http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Debug("response write failed")
	}
}
