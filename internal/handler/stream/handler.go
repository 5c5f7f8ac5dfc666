package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
	sessionService "github.com/zhouzirui/z-practice/backend/internal/service/session"
	"github.com/zhouzirui/z-practice/backend/pkg/utils"
)

const defaultKeepAlive = 15 * time.Second

// Handler pushes session events to the browser via Server-Sent Events
type Handler struct {
	sessions  *sessionService.Service
	keepAlive time.Duration
}

// New creates a new stream handler
func New(sessions *sessionService.Service) *Handler {
	return &Handler{sessions: sessions, keepAlive: defaultKeepAlive}
}

// RegisterRoutes 注册SSE路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// snapshotEvent is sent first so a reconnecting client can rebuild its view.
type snapshotEvent struct {
	Session  chat.Session          `json:"session"`
	Snapshot conversation.Snapshot `json:"snapshot"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	// 先订阅再取快照，避免漏掉两者之间产生的事件
	events, cancel, err := h.sessions.Subscribe(sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	defer cancel()

	info, snap, err := h.sessions.GetSession(ctx, sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	logger := log.With().Str("component", "sse").Str("session", sessionID).Logger()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := utils.SendSSEEvent(w, flusher, "snapshot", snapshotEvent{Session: info, Snapshot: snap}); err != nil {
		return
	}
	logger.Debug().Msg("stream opened")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("client disconnected")
			return
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keep-alive"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				logger.Debug().Err(err).Msg("write failed")
				return
			}
			if ev.Type == conversation.EventEnded {
				logger.Debug().Msg("session ended, closing stream")
				return
			}
		}
	}
}
