package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/chriskillpack/alttagger"
	"github.com/chriskillpack/alttagger/internal/processing"
	"github.com/chriskillpack/alttagger/internal/quota"
)

type Server struct {
	hs    *http.Server
	proc  *processing.Processor
	db    *alttagger.DB
	cfg   processing.Config
	quota *quota.Limiter
}

func NewServer(proc *processing.Processor, db *alttagger.DB, cfg processing.Config, q *quota.Limiter, addr string) *Server {
	srv := &Server{
		proc:  proc,
		db:    db,
		cfg:   cfg,
		quota: q,
	}

	srv.hs = &http.Server{
		Addr:    addr,
		Handler: srv.serveHandler(),
	}

	return srv
}

func (s *Server) Start() error {
	err := s.hs.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.hs.Shutdown(ctx)
}

func (s *Server) serveHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/step", s.serveStep())
	mux.Handle("GET /api/session", s.serveSession())
	mux.Handle("POST /api/session/fresh", s.serveFreshSession())
	mux.Handle("GET /api/stats", s.serveStats())
	mux.Handle("POST /api/preview", s.servePreview())
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("unable to write healthcheck")
		}
	})

	return mux
}

// stepRequest lets a caller adjust the step. Provider and model are fixed by
// the server's backend.
type stepRequest struct {
	BatchSize  *int `json:"batch_size"`
	MaxRetries *int `json:"max_retries"`
	Count      int  `json:"count"`
}

func (s *Server) decodeStep(r *http.Request) (processing.Config, stepRequest, error) {
	cfg := s.cfg
	var req stepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return cfg, req, err
	}
	if req.BatchSize != nil {
		cfg.BatchSize = *req.BatchSize
	}
	if req.MaxRetries != nil {
		cfg.MaxRetries = *req.MaxRetries
	}
	return cfg, req, nil
}

func (s *Server) serveStep() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := s.quota.Allow(caller(req)); err != nil {
			writeError(w, err)
			return
		}

		cfg, _, err := s.decodeStep(req)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		res, err := s.proc.Run(req.Context(), cfg)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) serveSession() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r, err := s.proc.CheckSession(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, r)
	}
}

func (s *Server) serveFreshSession() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := s.proc.StartFreshSession(req.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) serveStats() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		st, err := s.db.Stats(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func (s *Server) servePreview() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		cfg, body, err := s.decodeStep(req)
		if err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		results, err := s.proc.Preview(req.Context(), cfg, body.Count)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

// caller identifies the client for the step quota.
func caller(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, processing.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, processing.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, processing.ErrStepInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
