package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cppla/hoppin/config"
	"github.com/cppla/hoppin/controllers"
	"github.com/cppla/hoppin/ledger"
	"github.com/cppla/hoppin/middleware"
	"github.com/cppla/hoppin/store"
	"github.com/cppla/hoppin/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, s *store.Store, l *ledger.Ledger) *gin.Engine {
	switch strings.ToLower(cfg.App.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file when configured.
	accessLog := utils.Logger
	if cfg.Log.GinPath != "" {
		accessLog = utils.NewRollingFileLogger(cfg.Log, cfg.Log.GinPath)
	}
	r.Use(middleware.RequestID())
	r.Use(ginzap.Ginzap(accessLog, time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(accessLog, false))
	r.Use(middleware.RequestMetrics())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.App.AllowedOrigins) == 0 || (len(cfg.App.AllowedOrigins) == 1 && cfg.App.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.App.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		now, err := s.Now(ctx.Request.Context())
		if err != nil {
			utils.Logger.Warn("health check failed", zap.Error(err))
			utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeInternal+1, "store unavailable")
			return
		}
		utils.Success(ctx, gin.H{"status": "ok", "store": s.Driver(), "time": now})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authController := controllers.NewAuthController()
	visitController := controllers.NewVisitController(l, cfg.Ledger.VisitRadiusMeters, utils.Logger)
	checkInController := controllers.NewCheckInController(l)
	limiter := middleware.NewRateLimiter(cfg.App.RateLimitPerMinute)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(cfg.App.JWTSecret), limiter.Middleware())

	api.GET("/auth/me", authController.Me)
	api.POST("/visits", visitController.RecordVisit)
	api.GET("/progress", visitController.Progress)
	api.POST("/checkins/daily", checkInController.DailyCheckIn)
	api.GET("/streak", checkInController.Streak)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "route not found")
	})

	return r
}
