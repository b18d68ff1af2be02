// Package adminapi is the admin UI's HTTP surface: instruction submission,
// scan dispatch, client status, the file-review queue, and the audit feed.
// The Go port of frontend/app.py's Flask routes, restructured onto gin the
// way this codebase's other HTTP servers are built.
package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/filewarden/mesh/internal/config"
	"github.com/filewarden/mesh/internal/eventbus"
	"github.com/filewarden/mesh/internal/masterconn"
	"github.com/filewarden/mesh/internal/registry"
	"github.com/filewarden/mesh/internal/store"
	"github.com/filewarden/mesh/pkg/logger"
)

// Stores aggregates the store dependencies the admin API reads and writes.
type Stores struct {
	Agents        *store.AgentsStore
	Pending       *store.PendingFilesStore
	AuditLog      *store.AuditLogStore
	DeleteQueue   *store.DeleteQueueStore
	ScanTaskQueue *store.ScanTaskQueueStore
}

// Server is the admin API's HTTP server.
type Server struct {
	router     *gin.Engine
	stores     *Stores
	registry   *registry.Registry
	dispatcher *masterconn.Dispatcher
	bus        *eventbus.Bus
	cfg        *config.Config
}

// NewServer creates the admin API server and registers its routes.
func NewServer(stores *Stores, reg *registry.Registry, dispatcher *masterconn.Dispatcher, bus *eventbus.Bus, cfg *config.Config) *Server {
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestIDMiddleware())

	var proxies []string
	for _, p := range strings.Split(cfg.TrustedProxies, ",") {
		if t := strings.TrimSpace(p); t != "" {
			proxies = append(proxies, t)
		}
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		logger.Warn("adminapi: set trusted proxies failed", logger.FieldError, err)
	}

	s := &Server{router: r, stores: stores, registry: reg, dispatcher: dispatcher, bus: bus, cfg: cfg}
	s.registerRoutes()
	return s
}

// Engine returns the underlying gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine { return s.router }

// requestIDMiddleware stamps every request with a correlation ID (reused
// from an inbound X-Request-Id if the caller already set one), echoes it
// back on the response, and attaches a logger carrying it so every log
// line a handler emits for this request can be traced back to it.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)

		reqLogger := logger.FromContext(c.Request.Context()).With("request_id", reqID)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLogger))
		c.Next()
	}
}

func (s *Server) registerRoutes() {
	s.router.POST("/submit-instruction", s.submitInstruction)
	s.router.POST("/scan", s.scan)
	s.router.GET("/scan-results", s.scanResults)
	s.router.GET("/clients-status", s.clientsStatus)
	s.router.GET("/files-preview", s.filesPreview)
	s.router.GET("/audit-logs", s.auditLogs)
	s.router.POST("/approve-deletion", s.approveDeletion)
	s.router.POST("/reject-deletion", s.rejectDeletion)
	s.router.GET("/events", s.sseHandler)
}

// ListenAndServe starts the HTTP server, shutting it down gracefully when
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("adminapi: shutdown trigger")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("adminapi: shutdown error", logger.FieldError, err)
		}
	}()

	logger.Info(fmt.Sprintf("adminapi: listening on %s", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
