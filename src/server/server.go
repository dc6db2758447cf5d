package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	cfg "photomatch/src/configuration"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter registers every route on a fresh gin engine.
func NewRouter(config *cfg.Properties, deps Dependencies, logger zerolog.Logger) *gin.Engine {
	if !config.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Cache-Control", devUserHeader},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if config.Server.Debug {
		pprof.Register(router)
	}

	handler := NewHandler(deps, logger)

	router.GET("/health", handler.GetHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/", authorize(deps.Auth))
	api.POST("/events", handler.CreateEvent)
	api.GET("/events/:id", handler.GetEvent)
	api.PATCH("/events/:id", handler.UpdateEvent)
	api.DELETE("/events/:id", handler.DeleteEvent)
	api.GET("/events/:id/images", handler.GetImageList)
	api.POST("/events/:id/images", handler.PostImage)
	api.DELETE("/events/:id/images", handler.DeleteImage)
	api.PUT("/events/:id/cover", handler.PutCover)
	api.POST("/events/:id/match", handler.MatchSelfie)

	api.GET("/users/me/events", handler.ListOwnedEvents)
	api.GET("/users/me/summary", handler.GetSummary)
	api.GET("/users/me/matches", handler.ListMatches)
	api.GET("/users/me/matches/stats", handler.GetMatchStatistics)
	api.PUT("/users/me/selfie", handler.PutSelfie)
	api.PUT("/users/me/logo", handler.PutLogo)
	api.GET("/users/me/organizations", handler.ListOrganizations)
	api.POST("/users/me/organizations", handler.JoinOrganization)

	api.POST("/organizations", handler.RegisterOrganization)
	api.GET("/organizations/:code/events", handler.ListOrganizationEvents)

	router.NoRoute(func(ctx *gin.Context) { ctx.JSON(http.StatusNotFound, gin.H{}) })
	return router
}

// RunServer serves until ctx is cancelled, then drains in-flight requests.
func RunServer(ctx context.Context, config *cfg.Properties, deps Dependencies, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Server.Port),
		Handler:           NewRouter(config, deps, logger),
		ReadHeaderTimeout: config.Server.ReadTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger.Info().Msg("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

const requestIDHeader = "X-Request-ID"

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Next()
		ev := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Str("user", currentUser(c)).
			Str("request_id", id).
			Msg("request")
	}
}
