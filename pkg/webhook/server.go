// Package webhook provides the HTTP boundary for push delivery reports and
// incoming messages. Each route carries the gateway id in its path; the
// gateway's driver owns the wire format and parses the raw request body.
// Routes respond 404 for gateways that do not advertise the matching
// capability flag.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/logger"
	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/reconcile"
	"github.com/kart-io/smshub/pkg/report"
)

// IncomingProcessor runs parsed incoming messages through the routing
// pipeline and dispatch. Implemented by the smshub client.
type IncomingProcessor interface {
	Incoming(ctx context.Context, msgs []*message.Message) (*report.Receipt, error)
}

// Config holds webhook server configuration.
type Config struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	MaxBodyBytes int64         `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// Server handles provider callbacks.
type Server struct {
	registry   *gateway.Registry
	reconciler *reconcile.Reconciler
	incoming   IncomingProcessor
	config     Config
	server     *http.Server
	logger     logger.Logger
}

// NewServer creates a webhook server.
func NewServer(registry *gateway.Registry, reconciler *reconcile.Reconciler, incoming IncomingProcessor, cfg Config, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20 // 1MB
	}

	return &Server{
		registry:   registry,
		reconciler: reconciler,
		incoming:   incoming,
		config:     cfg,
		logger:     log,
	}
}

// Handler returns the HTTP handler with all webhook routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /gateways/{id}/reports", s.handlePushReports)
	mux.HandleFunc("POST /gateways/{id}/incoming", s.handleIncoming)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start starts the HTTP server. Blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.logger.Info("Webhook server listening", "addr", s.config.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// ReportURL builds the push delivery-report callback URL for a gateway,
// matching the route layout of Handler.
func ReportURL(baseURL, gatewayID string) (string, error) {
	if baseURL == "" {
		return "", fmt.Errorf("no base URL configured")
	}
	return strings.TrimSuffix(baseURL, "/") + "/gateways/" + gatewayID + "/reports", nil
}

// handlePushReports accepts a provider's pushed delivery reports, lets the
// gateway driver parse the raw body and reconciles the result.
func (s *Server) handlePushReports(w http.ResponseWriter, r *http.Request) {
	gw, caps, ok := s.lookupGateway(w, r)
	if !ok {
		return
	}
	parser, isParser := gw.(gateway.PushReportParser)
	if !caps.SupportsPushReports || !isParser {
		s.writeError(w, http.StatusNotFound, "gateway does not support push reports")
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		return
	}

	reports, err := parser.ParseDeliveryReports(r.Context(), body)
	if err != nil {
		s.logger.Error("Failed to parse delivery reports",
			"gateway", gw.ID(), "error", err)
		s.writeError(w, http.StatusBadRequest, "unparseable report payload")
		return
	}

	outcome, err := s.reconciler.Reconcile(r.Context(), reports)
	if err != nil {
		s.logger.Error("Reconciliation failed", "gateway", gw.ID(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"received": len(reports),
		"updated":  outcome.Updated,
		"dropped":  outcome.Dropped,
	})
}

// handleIncoming accepts messages pushed by a provider, lets the gateway
// driver parse the raw body and runs the result through the incoming
// pipeline.
func (s *Server) handleIncoming(w http.ResponseWriter, r *http.Request) {
	gw, caps, ok := s.lookupGateway(w, r)
	if !ok {
		return
	}
	// The route only exists for gateways that opt into pushed incoming
	// messages; whether incoming dispatch is supported at all is checked
	// again by the dispatcher.
	parser, isParser := gw.(gateway.IncomingParser)
	if !caps.AutoCreateIncomingRoute || !isParser {
		s.writeError(w, http.StatusNotFound, "gateway does not accept pushed incoming messages")
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		return
	}

	msgs, err := parser.ParseIncoming(r.Context(), body)
	if err != nil {
		s.logger.Error("Failed to parse incoming messages",
			"gateway", gw.ID(), "error", err)
		s.writeError(w, http.StatusBadRequest, "unparseable incoming payload")
		return
	}
	for _, msg := range msgs {
		msg.SetGateway(gw.ID())
	}

	receipt, err := s.incoming.Incoming(r.Context(), msgs)
	if err != nil {
		s.logger.Error("Incoming processing failed", "gateway", gw.ID(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "incoming processing failed")
		return
	}

	s.writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.registry.Health(r.Context())
	status := http.StatusOK
	body := make(map[string]string, len(health))
	for id, err := range health {
		if err != nil {
			body[id] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			body[id] = "ok"
		}
	}
	s.writeJSON(w, status, body)
}

func (s *Server) lookupGateway(w http.ResponseWriter, r *http.Request) (gateway.Gateway, gateway.Capabilities, bool) {
	id := r.PathValue("id")
	gw, err := s.registry.Gateway(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "unknown gateway")
		return nil, gateway.Capabilities{}, false
	}
	return gw, gw.Capabilities(), true
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable request body")
		return nil, err
	}
	return body, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
