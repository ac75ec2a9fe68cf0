package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/sweet-shop/internal/adapter/auth"
	"github.com/rl1809/sweet-shop/internal/adapter/handler"
	"github.com/rl1809/sweet-shop/internal/adapter/storage"
	"github.com/rl1809/sweet-shop/internal/config"
	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	store, err := storage.Open(storage.Options{
		Driver:    cfg.StoreDriver,
		MySQLDSN:  cfg.MySQLDSN,
		RedisAddr: cfg.RedisAddr,
		RedisDB:   cfg.RedisDB,
	})
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		// the store connects lazily, so requests retry the connection
		logger.Warn("store unreachable, starting without a connection", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	} else {
		logger.Info("connected to store", zap.String("driver", cfg.StoreDriver))
	}
	pingCancel()

	// Initialize services
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	authService := service.NewAuthService(store, auth.NewBcryptHasher(cfg.BcryptCost), tokens, logger)
	sweetService := service.NewSweetService(store, logger)

	if cfg.BootstrapAdmin() {
		created, err := authService.EnsureAdmin(ctx, domain.Registration{
			Username: cfg.AdminUsername,
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
		})
		switch {
		case err != nil:
			logger.Error("failed to bootstrap admin", zap.Error(err))
		case !created:
			logger.Info("admin account already present", zap.String("email", cfg.AdminEmail))
		}
	}

	// Initialize gRPC health server
	grpcServer := grpc.NewServer()
	grpcHealth := handler.NewGRPCHealth(store, cfg.HealthInterval, logger)
	grpcHealth.Register(grpcServer)
	go grpcHealth.Run(ctx)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	gin.SetMode(gin.ReleaseMode)
	httpHandler := handler.NewHTTPHandler(sweetService, authService, tokens, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           httpHandler.Router(cfg.APIPrefix),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr()), zap.String("prefix", cfg.APIPrefix))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcHealth.Shutdown()
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	cancel()
	if err := store.Close(); err != nil {
		logger.Warn("close store", zap.Error(err))
	}
	logger.Info("connections closed")
}
