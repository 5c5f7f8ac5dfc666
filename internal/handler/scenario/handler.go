package scenario

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
	"github.com/zhouzirui/z-practice/backend/pkg/utils"
)

// Handler 场景服务的HTTP处理器
type Handler struct {
	scenarios scenario.Store
}

// New 创建场景处理器
func New(scenarios scenario.Store) *Handler {
	return &Handler{scenarios: scenarios}
}

// RegisterRoutes 注册场景相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/scenarios", h.handleListScenarios)
	r.Get("/scenarios/{scenarioID}", h.handleGetScenario)
	r.Get("/difficulties", h.handleListDifficulties)
}

func (h *Handler) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.scenarios.List())
}

func (h *Handler) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.scenarios.FindByID(chi.URLParam(r, "scenarioID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "scenario not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sc)
}

// difficultyInfo is the delay band promised to the user for one level.
type difficultyInfo struct {
	Difficulty conversation.Difficulty `json:"difficulty"`
	MinDelayMs int64                   `json:"minDelayMs"`
	MaxDelayMs int64                   `json:"maxDelayMs"`
}

func (h *Handler) handleListDifficulties(w http.ResponseWriter, r *http.Request) {
	levels := conversation.Difficulties()
	out := make([]difficultyInfo, 0, len(levels))
	for _, d := range levels {
		band := conversation.Band(d)
		out = append(out, difficultyInfo{
			Difficulty: d,
			MinDelayMs: band.Min.Milliseconds(),
			MaxDelayMs: band.Max.Milliseconds(),
		})
	}
	utils.RespondJSON(w, http.StatusOK, out)
}
