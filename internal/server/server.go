// Package server exposes the local HTTP surface the browser extension
// talks to: raw event ingestion, recording control and state queries.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/codeweaver-pro/auditrec/internal/capture"
	"github.com/codeweaver-pro/auditrec/internal/config"
	"github.com/codeweaver-pro/auditrec/internal/logger"
	"github.com/codeweaver-pro/auditrec/internal/storage"
)

// Control actions accepted on POST /control. These names are shared
// with the extension side of the message contract.
const (
	ControlStart = "startRecording"
	ControlStop  = "stopRecording"
)

// Server is the audit capture daemon: it receives raw DOM events from
// the extension, runs them through the recorder and answers control
// requests.
type Server struct {
	store    storage.Store
	recorder *capture.Recorder

	address   string
	authToken string
	maxBody   int64
	origins   []string

	retainFor  time.Duration
	pruneEvery time.Duration

	server *http.Server
}

// NewServer wires a server from an opened store, a recorder and the
// daemon configuration.
func NewServer(store storage.Store, recorder *capture.Recorder, cfg *config.Config) *Server {
	pruneEvery := time.Duration(cfg.Retention.PruneIntervalHours) * time.Hour
	if pruneEvery <= 0 {
		pruneEvery = 24 * time.Hour
	}

	return &Server{
		store:      store,
		recorder:   recorder,
		address:    cfg.DaemonAddress(),
		authToken:  cfg.Daemon.AuthToken,
		maxBody:    int64(cfg.Daemon.MaxRequestSize),
		origins:    cfg.Daemon.AllowedOrigins,
		retainFor:  time.Duration(cfg.Retention.Days) * 24 * time.Hour,
		pruneEvery: pruneEvery,
	}
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// The extension calls from a chrome-extension:// origin, so CORS
	// must be explicit even though the daemon only binds localhost.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/state", s.handleState)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/events", s.handleEvents)
		r.Post("/control", s.handleControl)
	})

	return r
}

// requireAuth rejects requests without the configured bearer token.
// With no token configured, all requests pass.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" && r.Header.Get("Authorization") != "Bearer "+s.authToken {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

// handleEvents ingests a batch of raw DOM events. The recorder decides
// what becomes an audit message; the handler only decodes and bounds
// the request.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	var batch capture.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if len(batch.Events) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	for _, ev := range batch.Events {
		s.recorder.Observe(r.Context(), ev)
	}

	w.WriteHeader(http.StatusNoContent)
}

type controlRequest struct {
	Action string `json:"action"`
}

type controlResponse struct {
	Recording bool   `json:"recording"`
	SessionID string `json:"session_id,omitempty"`
}

// handleControl starts or stops recording. Both actions are
// idempotent: repeating one reports the current state instead of
// erroring.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch req.Action {
	case ControlStart:
		s.startRecording(r.Context(), w)
	case ControlStop:
		s.stopRecording(r.Context(), w)
	default:
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (s *Server) startRecording(ctx context.Context, w http.ResponseWriter) {
	if s.recorder.Recording() {
		writeJSON(w, http.StatusOK, controlResponse{Recording: true, SessionID: s.recorder.SessionID()})
		return
	}

	sess, err := s.store.StartSession(ctx, "daemon")
	if err != nil {
		logger.Error("start session failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	if err := s.store.SetRecordingState(ctx, true, sess.ID); err != nil {
		logger.Error("persist recording state failed", "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "failed to persist state")
		return
	}

	s.recorder.Start(sess.ID)
	logger.Info("recording started", "session_id", sess.ID)
	writeJSON(w, http.StatusOK, controlResponse{Recording: true, SessionID: sess.ID})
}

func (s *Server) stopRecording(ctx context.Context, w http.ResponseWriter) {
	if !s.recorder.Recording() {
		writeJSON(w, http.StatusOK, controlResponse{Recording: false})
		return
	}

	sessionID := s.recorder.SessionID()
	s.recorder.Stop()

	if err := s.store.EndSession(ctx, sessionID); err != nil {
		logger.Warn("end session failed", "session_id", sessionID, "error", err.Error())
	}
	if err := s.store.SetRecordingState(ctx, false, ""); err != nil {
		logger.Warn("persist recording state failed", "error", err.Error())
	}

	logger.Info("recording stopped", "session_id", sessionID)
	writeJSON(w, http.StatusOK, controlResponse{Recording: false})
}

type stateResponse struct {
	Recording bool       `json:"recording"`
	SessionID string     `json:"session_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// handleState reports the live recorder state, mostly for the
// extension popup and the status command.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{Recording: s.recorder.Recording()}
	if resp.Recording {
		resp.SessionID = s.recorder.SessionID()
		if sess, err := s.store.GetSession(r.Context(), resp.SessionID); err == nil {
			resp.StartedAt = &sess.StartedAt
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Bootstrap restores the recorder from the persisted recording state.
// Sessions left open by a crash are closed first; if the daemon was
// recording when it went down, capture resumes into a fresh session
// rather than appending to the interrupted one.
func (s *Server) Bootstrap(ctx context.Context) error {
	state, err := s.store.RecordingState(ctx)
	if err != nil {
		return fmt.Errorf("read recording state: %w", err)
	}

	closed, err := s.store.CloseOpenSessions(ctx)
	if err != nil {
		return fmt.Errorf("close open sessions: %w", err)
	}
	if closed > 0 {
		logger.Info("closed dangling sessions", "count", closed)
	}

	if !state.Recording {
		return nil
	}

	sess, err := s.store.StartSession(ctx, "resume")
	if err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	if err := s.store.SetRecordingState(ctx, true, sess.ID); err != nil {
		return fmt.Errorf("persist recording state: %w", err)
	}

	s.recorder.Start(sess.ID)
	logger.Info("recording resumed", "session_id", sess.ID, "previous_session", state.SessionID)
	return nil
}

// Start runs the HTTP server until SIGINT or SIGTERM, then shuts down
// gracefully. The retention prune loop runs alongside when retention
// is configured.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.address,
		Handler:      s.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("audit capture agent listening", "address", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	pruneCtx, cancelPrune := context.WithCancel(context.Background())
	defer cancelPrune()
	if s.retainFor > 0 {
		go s.pruneLoop(pruneCtx)
	}

	select {
	case err := <-errCh:
		return err
	case <-shutdownCh:
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

// pruneLoop periodically drops messages older than the retention
// window.
func (s *Server) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.retainFor)
			pruned, err := s.store.PruneExpired(ctx, cutoff)
			if err != nil {
				logger.Warn("retention prune failed", "error", err.Error())
				continue
			}
			if pruned > 0 {
				logger.Info("pruned expired messages", "count", pruned)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
