// Package server exposes the dashboard over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tsladash/internal/logger"
	"github.com/dyike/tsladash/internal/service"
)

// Response is the envelope of the read-only JSON endpoints.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

type Server struct {
	dash   *service.Dashboard
	hub    *Hub
	engine *gin.Engine
	log    logrus.FieldLogger
}

func New(dash *service.Dashboard, log logrus.FieldLogger) *Server {
	s := &Server{
		dash: dash,
		log:  logger.Component(log, "server"),
	}
	s.hub = NewHub(s.log)
	s.hub.Start()
	s.engine = s.routes()
	return s
}

// Close stops the websocket hub.
func (s *Server) Close() {
	s.hub.Stop()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/", s.handleIndex)
	r.GET("/chart", s.handleChart)
	r.GET("/healthz", s.handleHealth)
	r.GET("/ws", func(c *gin.Context) { s.hub.ServeWS(c.Writer, c.Request) })

	api := r.Group("/api")
	{
		api.GET("/bars", s.handleBars)
		api.GET("/summary", s.handleSummary)
		api.POST("/ask", s.handleAsk)
		api.GET("/history", s.handleHistory)
	}
	return r
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.Close()

	events, unsubscribe := s.dash.Subscribe()
	defer unsubscribe()
	go s.hub.Relay(ctx, events)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("dashboard listening")
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

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("dashboard stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).Round(time.Millisecond),
		}).Debug("request")
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Msg: "Ok", Data: data})
}

func fail(c *gin.Context, code int, err error) {
	c.JSON(code, Response{Code: code, Msg: err.Error()})
}
