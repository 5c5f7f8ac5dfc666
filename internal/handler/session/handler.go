package session

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
	sessionService "github.com/zhouzirui/z-practice/backend/internal/service/session"
	"github.com/zhouzirui/z-practice/backend/pkg/utils"
)

// Handler 练习会话的HTTP处理器
type Handler struct {
	sessions *sessionService.Service
}

// New 创建会话处理器
func New(sessions *sessionService.Service) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Post("/messages", h.handleSubmitMessage)
		r.Put("/difficulty", h.handleSetDifficulty)
		r.Post("/end", h.handleEndSession)
	})
}

// view is the session payload returned to the browser.
type view struct {
	Session  chat.Session       `json:"session"`
	State    conversation.State `json:"state"`
	Messages []chat.Message     `json:"messages"`
	Pending  int                `json:"pending"`
	Ended    bool               `json:"ended"`
	MinDelay int64              `json:"minDelayMs"`
	MaxDelay int64              `json:"maxDelayMs"`
	Notices  []string           `json:"notices,omitempty"`
}

func newView(info chat.Session, snap conversation.Snapshot) view {
	band := conversation.Band(snap.Difficulty)
	return view{
		Session:  info,
		State:    snap.State,
		Messages: snap.Messages,
		Pending:  snap.Pending,
		Ended:    snap.Ended,
		MinDelay: band.Min.Milliseconds(),
		MaxDelay: band.Max.Milliseconds(),
		Notices:  snap.Notices,
	}
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload sessionService.CreateRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	info, snap, err := h.sessions.CreateSession(r.Context(), payload)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, newView(info, snap))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, snap, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, newView(info, snap))
}

func (h *Handler) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.sessions.SubmitMessage(r.Context(), chi.URLParam(r, "sessionID"), payload.Content)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, msg)
}

func (h *Handler) handleSetDifficulty(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Difficulty string `json:"difficulty"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	difficulty, err := h.sessions.SetDifficulty(r.Context(), chi.URLParam(r, "sessionID"), payload.Difficulty)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	band := conversation.Band(difficulty)
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"difficulty": difficulty,
		"minDelayMs": band.Min.Milliseconds(),
		"maxDelayMs": band.Max.Milliseconds(),
	})
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		SaveTranscript bool `json:"saveTranscript"`
	}{SaveTranscript: true}
	if err := utils.DecodeJSON(r, &payload); err != nil && !errors.Is(err, io.EOF) {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := h.sessions.EndSession(r.Context(), chi.URLParam(r, "sessionID"), payload.SaveTranscript)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, summary)
}

// respondServiceError maps service sentinels onto HTTP status codes.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessionService.ErrSessionNotFound), errors.Is(err, sessionService.ErrScenarioNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sessionService.ErrScenarioRequired),
		errors.Is(err, conversation.ErrInvalidDifficulty),
		errors.Is(err, conversation.ErrInvalidStrategy),
		errors.Is(err, conversation.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrSessionEnded), errors.Is(err, conversation.ErrDriverClosed):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Str("component", "session-handler").Msg("request failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
