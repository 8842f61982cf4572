package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"braille-voice/internal/config"
	apphttp "braille-voice/internal/http"
	"braille-voice/internal/janitor"
	"braille-voice/internal/password"
	"braille-voice/internal/repository"
	"braille-voice/internal/repository/jsonfile"
	"braille-voice/internal/repository/sqlite"
	"braille-voice/internal/service"
	"braille-voice/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo, sessionRepo, closeStore, err := buildRepositories(cfg)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer closeStore()

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := sessionRepo.Init(ctx); err != nil {
		logger.Fatalf("init session repository: %v", err)
	}

	hasher, err := password.New(cfg.Auth.Hasher)
	if err != nil {
		logger.Fatalf("password hasher: %v", err)
	}

	credentials := service.NewCredentialService(userRepo, hasher, nil)
	sessions := service.NewSessionService(sessionRepo, nil)
	authService := service.NewAuthService(credentials, sessions, service.AuthConfig{
		SessionTTL: cfg.Auth.SessionTTL,
		Logger:     logger,
	})

	var storageSvc storage.Service
	if cfg.Upload.Bucket != "" {
		storageSvc, err = buildStorage(ctx, cfg, logger)
		if err != nil {
			logger.Fatalf("setup storage: %v", err)
		}
	} else {
		logger.Warn("upload.bucket not set, image uploads are disabled")
	}

	sweeper := janitor.New(janitor.Config{
		Interval: cfg.Auth.PurgeInterval,
		Logger:   logger,
	}, authService)
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatalf("start janitor: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(authService, storageSvc, apphttp.UploadConfig{
		Bucket:    cfg.Upload.Bucket,
		KeyPrefix: cfg.Upload.KeyPrefix,
		MaxBytes:  cfg.Upload.MaxBytes,
	}, logger)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s (%s store)", cfg.Server.Addr, cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	sweeper.Shutdown()

	logger.Info("bye")
}

func buildRepositories(cfg config.Config) (repository.UserRepository, repository.SessionRepository, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open database: %w", err)
		}
		return sqlite.NewUserRepository(db), sqlite.NewSessionRepository(db), closeDB(db), nil
	default:
		db, err := jsonfile.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open data dir: %w", err)
		}
		return jsonfile.NewUserRepository(db), jsonfile.NewSessionRepository(db), func() {}, nil
	}
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Upload.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Upload.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Upload.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Upload.Bucket, cfg.Upload.Region)
	return storage.NewS3Service(client), nil
}
