package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/0x-b4r47h/project-guardian/internal/audit"
	"github.com/0x-b4r47h/project-guardian/internal/cache"
	"github.com/0x-b4r47h/project-guardian/internal/config"
	"github.com/0x-b4r47h/project-guardian/internal/logger"
	"github.com/0x-b4r47h/project-guardian/internal/pii"
	"github.com/0x-b4r47h/project-guardian/internal/web"
	"github.com/0x-b4r47h/project-guardian/internal/websocket"
)

// Server is the HTTP analysis API.
type Server struct {
	config       *config.Config
	logger       *logger.Logger
	analyzer     *pii.Analyzer
	verdictCache *cache.VerdictCache // optional
	auditStore   *audit.Store        // optional
	router       *mux.Router
	server       *http.Server
	wsHub        *websocket.Hub
	limiter      *ipRateLimiter

	startTime     time.Time
	totalRequests int64
	totalFlagged  int64
}

// New creates a new server instance. Cache and audit connections are
// established here when enabled in the configuration.
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	analyzer, err := pii.NewAnalyzer(cfg.Detection.Detectors, log.WithComponent("pii"))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastVerdicts:    cfg.WebSocket.BroadcastVerdicts,
		BroadcastSystem:      cfg.WebSocket.BroadcastSystem,
		BroadcastConnections: cfg.WebSocket.BroadcastConnects,
	}, log.WithComponent("websocket").Logger)

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		analyzer:  analyzer,
		router:    mux.NewRouter(),
		wsHub:     wsHub,
		startTime: time.Now(),
	}

	if cfg.Cache.Enabled {
		vc, err := cache.NewVerdictCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect verdict cache: %w", err)
		}
		s.verdictCache = vc
	}

	if cfg.Audit.Enabled {
		store, err := audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect audit store: %w", err)
		}
		s.auditStore = store
	}

	if cfg.Server.RateLimit.Enabled {
		s.limiter = newIPRateLimiter(cfg.Server.RateLimit.RequestsPerSec, cfg.Server.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods("GET")

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	if s.limiter != nil {
		api.Use(s.rateLimitMiddleware)
	}
	api.HandleFunc("/analyze", s.handleAnalyze).Methods("POST")
	api.HandleFunc("/analyze/batch", s.handleAnalyzeBatch).Methods("POST")
}

// Start starts the HTTP server and the WebSocket hub. It blocks until
// the server stops.
func (s *Server) Start() error {
	s.logger.Info("Starting analysis server",
		zap.Int("port", s.config.Server.Port),
		zap.Strings("detectors", s.analyzer.Classifier().EnabledCategories()),
		zap.Bool("cache_enabled", s.verdictCache != nil),
		zap.Bool("audit_enabled", s.auditStore != nil))

	go s.wsHub.Run()
	if s.config.WebSocket.BroadcastSystem {
		go s.broadcastSystemStatus()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server and closes backend connections.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping analysis server")

	if s.verdictCache != nil {
		if err := s.verdictCache.Close(); err != nil {
			s.logger.Warn("Failed to close verdict cache", zap.Error(err))
		}
	}
	if s.auditStore != nil {
		if err := s.auditStore.Close(); err != nil {
			s.logger.Warn("Failed to close audit store", zap.Error(err))
		}
	}

	return s.server.Shutdown(ctx)
}

// handleWebSocket hands dashboard connections to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

// broadcastSystemStatus pushes periodic status events to the hub.
func (s *Server) broadcastSystemStatus() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		hubStats := s.wsHub.GetStats()
		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeSystemStatus,
			Timestamp: time.Now(),
			Data: websocket.SystemStatusEvent{
				Status:           "healthy",
				Uptime:           time.Since(s.startTime).Round(time.Second).String(),
				TotalRequests:    atomic.LoadInt64(&s.totalRequests),
				TotalFlagged:     atomic.LoadInt64(&s.totalFlagged),
				ActiveDetectors:  len(s.analyzer.Classifier().EnabledCategories()),
				ConnectedClients: int(hubStats.ActiveConnections),
			},
		})
	}
}

// GetWebSocketHub returns the hub for broadcasting events.
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
