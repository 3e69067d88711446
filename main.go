package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"history-calendar-loadtest/internal/auth"
	"history-calendar-loadtest/internal/cache"
	"history-calendar-loadtest/internal/config"
	"history-calendar-loadtest/internal/handlers"
	"history-calendar-loadtest/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const serviceVersion = "1.0.0"

// main runs a local calendar server to point the load test at.
func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := map[string]handlers.Pinger{}
	if cfg.HistoryRedisURL != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.HistoryRedisURL)
		if err != nil {
			logrus.WithError(err).Warn("Redis unavailable, health check will skip it")
		} else {
			defer redisClient.Close()
			deps["redis"] = redisClient
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := setupRouter(cfg, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":       cfg.Port,
			"jwt":        cfg.JWTSecret != "",
			"latency":    cfg.MockLatency,
			"error_rate": cfg.MockErrorRate,
		}).Info("Mock calendar server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down mock calendar server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Graceful shutdown failed")
	}
}

func setupRouter(cfg *config.Config, deps map[string]handlers.Pinger) *gin.Engine {
	var authService *auth.AuthService
	if cfg.JWTSecret != "" {
		authService = auth.NewAuthService(cfg.JWTSecret)
	}
	authMiddleware := middleware.NewAuthMiddleware(authService)

	calendarHandler := handlers.NewCalendarHandler(nil)
	healthHandler := handlers.NewHealthHandler(serviceVersion, deps)

	router := gin.New()
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Accept", "X-App-Version"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthHandler.Health)

	router.GET("/calendar",
		authMiddleware.BearerAuth(),
		middleware.FaultInjector(cfg.MockLatency, cfg.MockErrorRate),
		calendarHandler.GetCalendar,
	)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "history-calendar-mock",
			"version": serviceVersion,
			"endpoints": gin.H{
				"health":   "GET /health",
				"calendar": "GET /calendar?year={yyyy}&month={mm}",
			},
		})
	})

	return router
}
