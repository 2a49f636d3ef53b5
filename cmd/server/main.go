package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"cadence/practice/internal/analysis"
	"cadence/practice/internal/auth"
	"cadence/practice/internal/blob"
	"cadence/practice/internal/config"
	"cadence/practice/internal/db"
	practicegrpc "cadence/practice/internal/grpc"
	internalhttp "cadence/practice/internal/http"
	"cadence/practice/internal/jobs"
	"cadence/practice/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connection failed")
	}
	defer store.Close()

	var revoker auth.Revoker = auth.NewMemoryRevoker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		revoker = auth.NewRedisRevoker(rdb)
	} else {
		log.Warn("REDIS_ADDR not set, token revocation is kept in memory")
	}

	var blobs blob.Store
	if cfg.BlobEnabled() {
		blobs = blob.NewHTTPStore(cfg.BlobBaseURL, cfg.BlobToken)
	} else {
		local, err := blob.NewLocalStore(cfg.UploadDir)
		if err != nil {
			log.WithError(err).Fatal("upload dir init failed")
		}
		blobs = local
	}

	var client *analysis.Client
	if cfg.AnthropicAPIKey != "" {
		client = analysis.NewClient(analysis.Config{
			APIKey:  cfg.AnthropicAPIKey,
			BaseURL: cfg.AnthropicBaseURL,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.AnalysisTimeout,
		})
	} else {
		log.Warn("ANTHROPIC_API_KEY not set, analyses use the fallback result")
	}
	analyzer := analysis.NewAnalyzer(client, log)

	server := internalhttp.NewServer(cfg, store, revoker, blobs, analyzer, log)

	grpcServer, err := practicegrpc.NewServer(store, cfg.ServiceAuthToken)
	if err != nil {
		log.WithError(err).Fatal("grpc service auth init failed")
	}

	scheduler := jobs.NewScheduler(cfg, store, log)
	if err := scheduler.Start(); err != nil {
		log.WithError(err).Fatal("scheduler init failed")
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("practice http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server error")
		}
	}()

	go func() {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.WithError(err).Fatal("grpc listen error")
		}
		log.Infof("practice grpc listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(listener); err != nil {
			log.WithError(err).Fatal("grpc server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
	scheduler.Stop(shutdownCtx)
	grpcServer.GracefulStop()
}
