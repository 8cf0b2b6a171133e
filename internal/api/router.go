package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"vibemate.dev/vibemate/internal/logging"
)

func NewRouter(apiHandler *APIHandler, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logging.OrNop(logger).Named("http")))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(CORS(allowedOrigins))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Post("/user/info", apiHandler.SaveUserInfoHandler)
		r.Post("/user/bot", apiHandler.SaveBotHandler)
		r.Get("/user/bot/{userId}", apiHandler.GetBotHandler)
		r.Get("/user/{userId}", apiHandler.GetUserHandler)

		// Replies are streamed as text/markdown
		r.Post("/chat", apiHandler.ChatHandler)
		r.Post("/chat/vision", apiHandler.VisionHandler)
		r.Post("/chat/upload", apiHandler.UploadHandler)

		r.Post("/chat/memory", apiHandler.MemoryHandler)
		r.Delete("/chat/clear", apiHandler.ClearMemoryHandler)
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("requestId", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
