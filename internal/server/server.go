// Package server provides the HTTP API in front of the vehicle service.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/vehix/vehix/internal/config"
	"github.com/vehix/vehix/internal/repository/postgres"
	"github.com/vehix/vehix/internal/services/vehicle"
)

// Server is the HTTP server for the vehicle API.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	service    *vehicle.Service
	db         *postgres.DB
	redis      *redis.Client
	httpServer *http.Server
}

// New creates a new server instance. The vehicle service and the
// infrastructure handles are injected explicitly.
func New(cfg *config.Config, logger *zap.Logger, service *vehicle.Service, db *postgres.DB, redisClient *redis.Client) *Server {
	s := &Server{
		config:  cfg,
		logger:  logger.Named("http-server"),
		service: service,
		db:      db,
		redis:   redisClient,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/vehicles", s.handleCreateVehicle)
	mux.HandleFunc("GET /api/vehicles", s.handleListVehicles)
	mux.HandleFunc("GET /api/vehicles/{id}", s.handleGetVehicle)
	mux.HandleFunc("PATCH /api/vehicles/{id}", s.handleUpdateVehicle)
	mux.HandleFunc("DELETE /api/vehicles/{id}", s.handleDeleteVehicle)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// Run starts the server and blocks until ctx is cancelled or the
// listener fails, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.db.Health(ctx); err != nil {
		s.logger.Warn("Health check failed: PostgreSQL unreachable", zap.Error(err))
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		s.logger.Warn("Health check failed: Redis unreachable", zap.Error(err))
		http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
