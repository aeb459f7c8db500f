package daemon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkvoice/internal/api"
	"inkvoice/internal/config"
	"inkvoice/internal/events"
	"inkvoice/internal/logging"
	"inkvoice/internal/queue"
	"inkvoice/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	narration *api.NarrationService
	assembly  *api.AssemblyService
	queueSvc  *api.QueueService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:      bind,
		logger:    logger,
		daemon:    d,
		narration: api.NewNarrationService(d.comps.Store),
		assembly:  api.NewAssemblyService(d.comps.Store),
		queueSvc:  api.NewQueueService(d.comps.Store),
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chapters/{id}/narration/start", s.handleNarrationStart)
	mux.HandleFunc("GET /api/chapters/{id}/narration/status", s.handleNarrationStatus)
	mux.HandleFunc("POST /api/chapters/{id}/narration/cancel", s.handleNarrationCancel)
	mux.HandleFunc("POST /api/chapters/{id}/audio/process", s.handleAudioProcess)
	mux.HandleFunc("GET /api/chapters/{id}/audio/status", s.handleAudioStatus)
	mux.HandleFunc("GET /api/chapters/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /api/characters/{id}/voice-preview", s.handleVoicePreview)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

type startRequest struct {
	Force    bool   `json:"force"`
	SpeechID string `json:"speechId"`
}

func (s *apiServer) handleNarrationStart(w http.ResponseWriter, r *http.Request) {
	if !s.queueAccepting(w) {
		return
	}
	var req startRequest
	if !s.decodeOptionalBody(w, r, &req) {
		return
	}
	job, err := s.narration.Start(r.Context(), r.PathValue("id"), api.StartOptions{
		ForceRegenerate: req.Force,
		SpeechID:        req.SpeechID,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *apiServer) handleNarrationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.narration.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleNarrationCancel(w http.ResponseWriter, r *http.Request) {
	result, err := s.narration.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeCancelResult(w, result)
}

func (s *apiServer) handleAudioProcess(w http.ResponseWriter, r *http.Request) {
	if !s.queueAccepting(w) {
		return
	}
	var req startRequest
	if !s.decodeOptionalBody(w, r, &req) {
		return
	}
	job, err := s.assembly.Process(r.Context(), r.PathValue("id"), req.Force)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *apiServer) handleAudioStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.assembly.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

type eventStreamResponse struct {
	Events []events.Event `json:"events"`
	Next   uint64         `json:"next"`
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.comps.Hub
	if hub == nil {
		s.writeJSON(w, http.StatusOK, eventStreamResponse{})
		return
	}
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")

	ctx := r.Context()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	evts, next, err := hub.Fetch(ctx, r.PathValue("id"), since, limit, follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, eventStreamResponse{Events: evts, Next: next})
}

type previewRequest struct {
	SampleText string `json:"sampleText"`
}

func (s *apiServer) handleVoicePreview(w http.ResponseWriter, r *http.Request) {
	previews := s.daemon.comps.Previews
	if previews == nil {
		s.writeError(w, http.StatusServiceUnavailable, "voice previews unavailable")
		return
	}
	var req previewRequest
	if !s.decodeOptionalBody(w, r, &req) {
		return
	}
	sample, err := previews.ForCharacter(r.Context(), r.PathValue("id"), req.SampleText)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.VoicePreview{
		AudioBase64: base64.StdEncoding.EncodeToString(sample.Data),
		Format:      sample.Format,
		Cached:      sample.Cached,
	})
}

func (s *apiServer) handleVoices(w http.ResponseWriter, r *http.Request) {
	catalog := s.daemon.comps.Voices
	if catalog == nil {
		s.writeError(w, http.StatusServiceUnavailable, "voice catalog unavailable")
		return
	}
	refresh := r.URL.Query().Get("refresh") == "1"
	voices, err := catalog.Voices(r.Context(), refresh)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"voices": api.FromVoices(voices)})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		if status, ok := queue.ParseStatus(value); ok {
			statuses = append(statuses, status)
		}
	}
	jobs, err := s.queueSvc.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Jobs: jobs})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		QueueStats:   api.MergeQueueStats(status.QueueStats),
		StageHealth:  api.StageHealthSlice(status.StageHealth),
		LastError:    status.LastError,
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// queueAccepting rejects job submissions while the queue is disabled.
func (s *apiServer) queueAccepting(w http.ResponseWriter) bool {
	if s.daemon.cfg.Workflow.QueueEnabled {
		return true
	}
	s.writeError(w, http.StatusServiceUnavailable, "job queue is disabled")
	return false
}

// decodeOptionalBody tolerates an empty request body and rejects malformed
// JSON.
func (s *apiServer) decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *apiServer) writeCancelResult(w http.ResponseWriter, result api.CancelResult) {
	switch result.Outcome {
	case queue.CancelNotFound:
		s.writeError(w, http.StatusNotFound, "no open job for chapter")
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]any{
			"outcome": string(result.Outcome),
			"job":     result.Job,
		})
	}
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrAlreadyInProgress), errors.Is(err, services.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, services.ErrInvalidVoice):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, services.ErrTimeout):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
