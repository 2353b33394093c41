package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Delamole/botesp/internal/config"
	"github.com/Delamole/botesp/internal/events"
	"github.com/Delamole/botesp/internal/observability"
	"github.com/Delamole/botesp/internal/telegram"
	"github.com/Delamole/botesp/internal/tutor"
)

// Pipeline is the turn-processing surface the transport needs.
type Pipeline interface {
	HandleTurn(ctx context.Context, chatID, userID int64, in tutor.Input) tutor.Result
	Respond(ctx context.Context, chatID, userID int64, turnID, text string)
	Greeting() string
	Transcript(userID int64) string
	VoiceError() string
}

// VoiceFetcher retrieves a voice clip referenced by an inbound update.
type VoiceFetcher interface {
	GetFile(ctx context.Context, fileID string) (telegram.File, error)
	Download(ctx context.Context, filePath string) ([]byte, error)
}

type Server struct {
	cfg      config.Config
	pipeline Pipeline
	files    VoiceFetcher
	hub      *events.Hub
	metrics  *observability.Metrics
	stages   *observability.StageWindow
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, pipeline Pipeline, files VoiceFetcher, hub *events.Hub, metrics *observability.Metrics, stages *observability.StageWindow, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		files:    files,
		hub:      hub,
		metrics:  metrics,
		stages:   stages,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// The event feed is an operator surface; only same-origin
				// browser connections are allowed unless explicitly opened.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleStatus)
	r.Get("/healthz", s.handleStatus)
	r.Get("/readyz", s.handleStatus)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/events/ws", s.handleEventsWS)

	r.Post("/webhook", s.handleWebhook)

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.stages == nil {
		respondJSON(w, http.StatusOK, observability.StageSnapshot{GeneratedAt: time.Now().UTC()})
		return
	}
	respondJSON(w, http.StatusOK, s.stages.Snapshot())
}

// handleWebhook ingests one platform update. A malformed envelope is the
// transport's only failure mode; everything downstream degrades inside the
// pipeline and the platform always gets a 200.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		s.log.Error("webhook decode failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.dispatch(r.Context(), update)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) dispatch(ctx context.Context, update telegram.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		// Edited messages, channel posts and other update kinds are ignored.
		return
	}
	chatID := msg.Chat.ID
	userID := msg.From.ID

	switch {
	case msg.Voice != nil:
		audio, err := s.fetchVoice(ctx, msg.Voice.FileID)
		if err != nil {
			s.log.Warn("voice clip download failed",
				zap.Int64("user_id", userID),
				zap.String("file_id", msg.Voice.FileID),
				zap.Error(err))
			if s.metrics != nil {
				s.metrics.ProviderErrors.WithLabelValues("telegram", "get_file").Inc()
			}
			s.pipeline.Respond(ctx, chatID, userID, "", s.pipeline.VoiceError())
			return
		}
		s.pipeline.HandleTurn(ctx, chatID, userID, tutor.Input{Audio: audio})

	case strings.HasPrefix(msg.Text, "/start"):
		s.pipeline.Respond(ctx, chatID, userID, "", s.pipeline.Greeting())

	case strings.HasPrefix(msg.Text, "/texto"):
		s.pipeline.Respond(ctx, chatID, userID, "", s.pipeline.Transcript(userID))

	case msg.Text != "":
		s.pipeline.HandleTurn(ctx, chatID, userID, tutor.Input{Text: msg.Text})
	}
}

func (s *Server) fetchVoice(ctx context.Context, fileID string) ([]byte, error) {
	f, err := s.files.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return s.files.Download(ctx, f.FilePath)
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondJSON(w, http.StatusNotImplemented, map[string]string{"error": "event feed not configured"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, cancel := s.hub.Subscribe()
	defer cancel()

	ctx := r.Context()

	// Discard client frames so pings and close messages are handled.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
