package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenMotionCore/internal/api/websocket"
	"github.com/KevinKickass/OpenMotionCore/internal/auth"
	"github.com/KevinKickass/OpenMotionCore/internal/config"
	"github.com/KevinKickass/OpenMotionCore/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, wsHub *websocket.Hub, authService *auth.AuthService, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.logger.Info("Starting REST API server", zap.String("address", lis.Addr().String()))
	go func() {
		if err := s.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery(), LoggerMiddleware(s.logger), CORSMiddleware())

	// Probes für systemd / Kubernetes, ohne Auth
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ready", s.readiness)

	v1 := s.router.Group("/api/v1")
	v1.POST("/auth/token", s.issueToken)

	// Websocket authenticates with its first message
	v1.GET("/ws/live", s.wsLiveConnection)

	op := v1.Group("", s.authService.AuthMiddleware(), auth.RequirePermission(auth.PermOperator))
	{
		op.GET("/system/status", s.getSystemStatus)
		op.POST("/system/shutdown", auth.RequirePermission(auth.PermAdmin), s.shutdown)

		op.GET("/bus/slaves", s.listSlaves)
		op.GET("/bus/stats", s.getStats)
		op.GET("/bus/axes", s.listAxes)

		op.GET("/templates", s.listTemplates)
		op.GET("/templates/:name", s.getTemplate)

		op.GET("/ws/status", s.wsStatus)
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}
