package monitoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CryptoNewsAnalyzer/internal/logging"
)

// Server exposes health, report and metrics endpoints.
type Server struct {
	reporter *Reporter
	logger   *slog.Logger
	http     *http.Server
}

// NewServer builds the HTTP surface on addr.
func NewServer(addr string, reporter *Reporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{reporter: reporter, logger: logger.With("component", "http")}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	})

	r.GET("/health", s.health)
	r.GET("/report", s.report)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (s *Server) health(c *gin.Context) {
	report := s.reporter.Build(c.Request.Context())
	code := http.StatusOK
	if report.OverallStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":     report.OverallStatus,
		"timestamp":  report.Timestamp.Format(time.RFC3339),
		"components": report.Components,
	})
}

func (s *Server) report(c *gin.Context) {
	c.JSON(http.StatusOK, s.reporter.Build(c.Request.Context()))
}

// Start serves until Shutdown; the returned channel receives a listen failure.
func (s *Server) Start() <-chan error {
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
		close(errs)
	}()
	return errs
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
