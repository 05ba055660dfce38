package rpc

import (
	"net/http"

	"botlink/internal/core/robot"
	"botlink/internal/core/services"
	"botlink/internal/infrastructure/middleware"
	"botlink/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewHandlerFactory returns the handler served on every HTTP/2 connection,
// whether it arrived over TCP or a WebRTC data channel.
func NewHandlerFactory(cfg *config.Config, tokens services.TokenService, logger *zap.SugaredLogger) services.HandlerFactory {
	return func(shared *robot.Shared) http.Handler {
		router := gin.New()
		router.Use(
			middleware.RecoveryMiddleware(logger),
			middleware.TracingMiddleware(),
			middleware.ErrorHandlerMiddleware(logger),
			middleware.NewRPCRateLimitMiddleware(cfg),
		)

		if cfg.RPC.RequireAuth {
			router.Use(middleware.AuthMiddleware(tokens, cfg.Cloud.RobotID))
		} else {
			router.Use(middleware.OptionalAuthMiddleware(tokens, cfg.Cloud.RobotID))
		}

		NewRobotHandler(shared).SetupRoutes(router)
		return router
	}
}
