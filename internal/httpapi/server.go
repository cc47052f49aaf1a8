// Package httpapi exposes the operational HTTP surface: health, manual
// reconcile, and an inbound message webhook for channels that push instead of
// poll.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"courtbot/internal/engine"
	"courtbot/internal/transport"
	"courtbot/pkg/logx"
)

// Engine is the slice of the trigger engine the API needs.
type Engine interface {
	ReconcileAll(ctx context.Context) error
	ActiveJobs() []string
	History() []engine.HistoryItem
}

// Handler processes one inbound message.
type Handler interface {
	Handle(ctx context.Context, upd transport.Update)
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Server struct {
	cfg     Config
	eng     Engine
	handler Handler
	log     logx.Logger

	srv *http.Server
}

func NewServer(cfg Config, eng Engine, handler Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, eng: eng, handler: handler, log: log}
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/jobs", s.handleJobs)
	r.Post("/reconcile", s.handleReconcile)
	r.Post("/webhook", s.handleWebhook)
	return r
}

// Start begins serving and returns once the listener exits. ErrServerClosed
// from a clean Shutdown is swallowed.
func (s *Server) Start() error {
	s.log.Info("http listening", logx.String("addr", s.cfg.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   len(s.eng.ActiveJobs()),
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	type run struct {
		RunID    string `json:"run_id"`
		JobID    string `json:"job_id"`
		Started  string `json:"started"`
		Duration string `json:"duration"`
		Matched  int    `json:"matched"`
		Error    string `json:"error,omitempty"`
	}
	hist := s.eng.History()
	runs := make([]run, 0, len(hist))
	for _, h := range hist {
		runs = append(runs, run{
			RunID:    h.RunID,
			JobID:    h.JobID,
			Started:  h.Started.Format(time.RFC3339),
			Duration: h.Duration.String(),
			Matched:  h.Matched,
			Error:    h.Error,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  s.eng.ActiveJobs(),
		"history": runs,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.ReconcileAll(r.Context()); err != nil {
		s.log.Error("reconcile via http failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "reconciled",
		"jobs":   len(s.eng.ActiveJobs()),
	})
}

// handleWebhook accepts {"from": "<identity>", "text": "<message>"} and runs
// it through the command pipeline, replying over the outbound channel.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From string `json:"from"`
		Text string `json:"text"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	if strings.TrimSpace(body.From) == "" || strings.TrimSpace(body.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "from and text are required"})
		return
	}

	s.handler.Handle(r.Context(), transport.Update{
		From: transport.Recipient{ID: body.From},
		Text: body.Text,
	})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
