// Package tradehttp exposes the signal webhook, the sweep triggers, and the
// per-instrument configuration CRUD over HTTP.
package tradehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"riptide/internal/executor"
	"riptide/internal/logger"
	"riptide/internal/store"
)

// Server wraps the gin engine and its listener lifecycle.
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr     string
	Executor *executor.Executor
	Sweeper  *executor.Sweeper
	Store    *store.Store
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Executor == nil || cfg.Sweeper == nil || cfg.Store == nil {
		return nil, errors.New("trade http server requires executor, sweeper and store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9983"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{exec: cfg.Executor, sweeper: cfg.Sweeper, store: cfg.Store}
	api := router.Group("/api")
	api.POST("/signal", h.handleSignal)
	api.POST("/sweep/cancel-orders", h.handleSweepCancelOrders)
	api.POST("/sweep/close-position", h.handleSweepClosePosition)
	api.GET("/config/:symbol", h.handleGetConfig)
	api.PUT("/config/:symbol", h.handlePutConfig)
	api.GET("/ladder/:symbol", h.handleGetLadder)
	api.PUT("/ladder/:symbol", h.handlePutLadder)

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http: listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infof("http: %s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Truncate(time.Millisecond))
	}
}
