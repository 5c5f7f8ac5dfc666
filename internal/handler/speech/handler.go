package speech

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-practice/backend/internal/clock"
	sessionService "github.com/zhouzirui/z-practice/backend/internal/service/session"
	speechsvc "github.com/zhouzirui/z-practice/backend/internal/service/speech"
)

const defaultSpeakTimeout = 30 * time.Second

// Options tunes the live session channel.
type Options struct {
	// SilenceWindow 识别结果静默多久后提交
	SilenceWindow time.Duration
	// SpeakTimeout 等待浏览器确认播放完成的最长时间
	SpeakTimeout   time.Duration
	AllowedOrigins []string
	AfterFunc      clock.AfterFunc
}

// Handler 实时会话的WebSocket处理器
type Handler struct {
	sessions *sessionService.Service
	opts     Options
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(sessions *sessionService.Service, opts Options) *Handler {
	if opts.SilenceWindow <= 0 {
		opts.SilenceWindow = speechsvc.DefaultSilenceWindow
	}
	if opts.SpeakTimeout <= 0 {
		opts.SpeakTimeout = defaultSpeakTimeout
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = clock.Real
	}

	h := &Handler{sessions: sessions, opts: opts}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
