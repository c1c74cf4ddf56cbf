package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/HacksterAman/Clean-Bounty/internal/auth"
	"github.com/HacksterAman/Clean-Bounty/internal/classifier"
	"github.com/HacksterAman/Clean-Bounty/internal/config"
	"github.com/HacksterAman/Clean-Bounty/internal/grpcclient"
	"github.com/HacksterAman/Clean-Bounty/internal/handlers"
	"github.com/HacksterAman/Clean-Bounty/internal/logging"
	"github.com/HacksterAman/Clean-Bounty/internal/repository"
	"github.com/HacksterAman/Clean-Bounty/internal/usecase"
	"github.com/HacksterAman/Clean-Bounty/internal/waste"
)

func main() {
	cfg, err := config.Load(getEnv("CLEANBOUNTY_CONFIG", ""))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo usecase.SubmissionRepository
	if cfg.Database.Enabled {
		db := initDatabase(ctx, cfg.Database.DSN, logger)
		submissions := repository.NewSubmissionRepository(db, logger)
		if err := submissions.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		repo = submissions
	} else {
		logger.Warn("database disabled; submission history is unavailable")
	}

	var cache usecase.Cache
	if cfg.Redis.Enabled {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.Redis.Addr, logger)
		redisCancel()
		defer redisClient.Close()
		cache = usecase.NewRedisCache(redisClient)
	} else {
		logger.Warn("redis disabled; classifications are not cached")
	}

	cls, describer, closeBackends := initClassifiers(ctx, cfg, logger)
	defer closeBackends()

	uc := usecase.NewSubmissionUseCase(repo, cache, cls, describer, logger,
		usecase.WithCacheTTL(cfg.CacheTTL),
		usecase.WithClassifyTimeout(cfg.Classifier.Timeout),
	)

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize

	authMiddleware := auth.JWTMiddleware(cfg.JWT.Secret, cfg.JWT.Audience)

	handlers.RegisterRoutes(r, uc, authMiddleware)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: r,
	}

	logger.Info("Clean-Bounty API listening",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("classifier", cfg.Classifier.Backend),
	)
	if err := serveHTTPServer(server, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// initClassifiers builds the classification and description backends. The
// grpc backend only classifies; descriptions still come from Gemini when a key
// is configured and are otherwise reported as unavailable.
func initClassifiers(ctx context.Context, cfg *config.Config, logger *zap.Logger) (classifier.Classifier, classifier.Describer, func()) {
	var (
		gemini  *classifier.GeminiClient
		closers []func()
	)
	if cfg.Gemini.APIKey != "" {
		g, err := classifier.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
		if err != nil {
			logger.Fatal("failed to create gemini client", zap.Error(err))
		}
		logger.Info("gemini client ready", zap.String("model", g.Model()))
		gemini = g
		closers = append(closers, func() { _ = g.Close() })
	}

	var describer classifier.Describer = classifier.DescriberFunc(func(context.Context, waste.ClassificationResult) (waste.BountyDescription, error) {
		return waste.BountyDescription{}, fmt.Errorf("%w: no description backend configured", waste.ErrUpstream)
	})
	if gemini != nil {
		describer = gemini
	}

	var cls classifier.Classifier
	switch cfg.Classifier.Backend {
	case config.BackendGRPC:
		remote, conn, err := grpcclient.DialClassifier(ctx, cfg.Classifier.Addr, logger)
		if err != nil {
			logger.Fatal("failed to connect to classifier", zap.Error(err))
		}
		closers = append(closers, func() { _ = conn.Close() })
		cls = remote
	default:
		cls = gemini
	}

	return cls, describer, func() {
		for _, c := range closers {
			c()
		}
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
