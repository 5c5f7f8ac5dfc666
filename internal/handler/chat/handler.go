package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	"github.com/zhouzirui/z-practice/backend/internal/model/chat"
	"github.com/zhouzirui/z-practice/backend/internal/service/ai"
	"github.com/zhouzirui/z-practice/backend/pkg/utils"
)

// Handler 对话接口的HTTP处理器
type Handler struct {
	responder conversation.Responder
}

// New 创建对话处理器
func New(responder conversation.Responder) *Handler {
	return &Handler{responder: responder}
}

// RegisterRoutes 注册对话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

// handleChat 生成一轮模型回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.responder == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "conversational AI unavailable")
		return
	}

	var payload chat.Request
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	for _, turn := range payload.ConversationHistory {
		if turn.Role != chat.RoleUser && turn.Role != chat.RoleModel {
			utils.RespondError(w, http.StatusBadRequest, "conversationHistory roles must be user or model")
			return
		}
	}

	resp, err := h.responder.Respond(r.Context(), payload)
	if err != nil {
		if errors.Is(err, ai.ErrEmptyInput) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Warn().Err(err).Str("component", "chat-handler").Msg("response generation failed")
		utils.RespondError(w, http.StatusBadGateway, "failed to generate response")
		return
	}

	utils.RespondJSON(w, http.StatusOK, resp)
}
