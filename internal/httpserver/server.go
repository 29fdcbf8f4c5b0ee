package httpserver

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Server wraps a Gin engine exposing the demo ingest/query surface over
// one Engine, plus a database-backed health check.
type Server struct {
	Engine *gin.Engine
	Addr   string
	db     *sql.DB
}

// New builds the Gin router: health check, then every Service route.
func New(addr string, db *sql.DB, mode string, svc *Service) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	s := &Server{Engine: r, Addr: addr, db: db}
	r.GET("/health", s.healthHandler)
	svc.RegisterRoutes(r)

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			slog.Error("[httpserver] health check failed: database unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unreachable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected"})
}

// Run starts the HTTP server and blocks until ctx is cancelled, then drains
// in-flight requests for up to 5 seconds before returning.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Engine}

	slog.Info("[httpserver] starting", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("[httpserver] stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("[httpserver] forced shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
