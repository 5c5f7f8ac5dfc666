package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-practice/backend/internal/conversation"
	"github.com/zhouzirui/z-practice/backend/internal/handler/chat"
	"github.com/zhouzirui/z-practice/backend/internal/handler/history"
	scenarioHandler "github.com/zhouzirui/z-practice/backend/internal/handler/scenario"
	sessionHandler "github.com/zhouzirui/z-practice/backend/internal/handler/session"
	"github.com/zhouzirui/z-practice/backend/internal/handler/speech"
	"github.com/zhouzirui/z-practice/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/z-practice/backend/internal/middleware"
	"github.com/zhouzirui/z-practice/backend/internal/model/scenario"
	sessionService "github.com/zhouzirui/z-practice/backend/internal/service/session"
	"github.com/zhouzirui/z-practice/backend/internal/store"
	"github.com/zhouzirui/z-practice/backend/pkg/utils"
)

// Dependencies are the services exposed over HTTP. Chat and History may be nil.
type Dependencies struct {
	Scenarios      scenario.Store
	Sessions       *sessionService.Service
	Chat           conversation.Responder
	History        store.Repository
	AllowedOrigins []string
	Speech         speech.Options
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", healthz(deps))

	speechOpts := deps.Speech
	if len(speechOpts.AllowedOrigins) == 0 {
		speechOpts.AllowedOrigins = deps.AllowedOrigins
	}

	r.Route("/api", func(api chi.Router) {
		scenarioHandler.New(deps.Scenarios).RegisterRoutes(api)
		sessionHandler.New(deps.Sessions).RegisterRoutes(api)
		stream.New(deps.Sessions).RegisterRoutes(api)
		speech.New(deps.Sessions, speechOpts).RegisterRoutes(api)
		chat.New(deps.Chat).RegisterRoutes(api)

		if deps.History != nil {
			history.New(deps.History).RegisterRoutes(api)
		}
	})

	return r
}

func healthz(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"status":   "ok",
			"sessions": deps.Sessions.Active(),
		}
		if deps.History != nil {
			if err := deps.History.Ping(r.Context()); err != nil {
				log.Error().Err(err).Str("component", "healthz").Msg("history store unreachable")
				status["status"] = "degraded"
				status["history"] = err.Error()
				utils.RespondJSON(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, status)
	}
}
