package history

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/store"
	"github.com/zhouzirui/z-practice/backend/pkg/utils"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Handler 历史记录的HTTP处理器
type Handler struct {
	repo store.Repository
}

// New 创建历史记录处理器
func New(repo store.Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes 注册历史记录相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/history", h.handleList)
	r.Get("/history/{summaryID}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxLimit)
	}

	var (
		summaries []store.Summary
		err       error
	)
	if scenarioID := r.URL.Query().Get("scenario"); scenarioID != "" {
		summaries, err = h.repo.ListByScenario(r.Context(), scenarioID, limit)
	} else {
		summaries, err = h.repo.List(r.Context(), limit)
	}
	if err != nil {
		log.Error().Err(err).Str("component", "history-handler").Msg("list summaries failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if summaries == nil {
		summaries = []store.Summary{}
	}

	utils.RespondJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	summary, err := h.repo.Get(r.Context(), chi.URLParam(r, "summaryID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "summary not found")
			return
		}
		log.Error().Err(err).Str("component", "history-handler").Msg("get summary failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}

	utils.RespondJSON(w, http.StatusOK, summary)
}
