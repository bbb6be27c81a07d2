package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/moodchat/client/internal/handler/chat"
	"github.com/zhouzirui/moodchat/client/internal/handler/history"
	"github.com/zhouzirui/moodchat/client/internal/handler/live"
	"github.com/zhouzirui/moodchat/client/internal/handler/realtime"
	"github.com/zhouzirui/moodchat/client/internal/handler/recording"
	"github.com/zhouzirui/moodchat/client/pkg/utils"
)

// Routes 汇总需要挂载到 /api 下的处理器
type Routes struct {
	Chat      *chat.Handler
	Realtime  *realtime.Handler
	Recording *recording.Handler
	History   *history.Handler
	Live      *live.Hub
}

// NewRouter wires HTTP routes to core services.
func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		if routes.Chat != nil {
			routes.Chat.RegisterRoutes(api)
		}
		if routes.Realtime != nil {
			routes.Realtime.RegisterRoutes(api)
		}
		if routes.Recording != nil {
			routes.Recording.RegisterRoutes(api)
		}
		if routes.History != nil {
			routes.History.RegisterRoutes(api)
		}
		if routes.Live != nil {
			routes.Live.RegisterRoutes(api)
		}
	})

	return r
}

// requestLogger 用 zerolog 记录每个请求的方法、路径、状态码与耗时
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		}()

		next.ServeHTTP(ww, r)
	})
}
