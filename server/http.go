package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"recording-service/config"
	"recording-service/constant"
	jobHandler "recording-service/handler"
	"recording-service/pkg/rabbitmq"
	"recording-service/repository"
	"recording-service/service"
	"recording-service/storage"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		return
	}

	var repo repository.Repository
	if cfg.DB != nil {
		repo = repository.NewRepo(cfg.DB)
	} else {
		zerolog.Ctx(ctx).Warn().Msg("no postgres configured, using in-memory repository")
		repo = repository.NewMemory()
	}

	var (
		store  storage.Store
		issuer storage.Issuer
	)
	switch cfg.Storage.Mode {
	case constant.StorageModeMinio:
		store = storage.NewMinioStore(cfg.Minio, cfg.Storage.Bucket)
		issuer = storage.NewMinioIssuer(cfg.Minio, cfg.Storage.Bucket, cfg.Storage.PresignExpiry)
	default:
		store, err = storage.NewLocalStore(cfg.Storage.LocalDir)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create local store")
			return
		}
		issuer = storage.NewLocalIssuer(cfg.BaseURL())
	}

	sessions := service.NewSessionStore(repo, store)
	publisher := rabbitmq.NewPublisher(conn, cfg.Queue)
	ingest := service.NewIngestService(repo, publisher, issuer, cfg.Storage.TempDir)
	finalizer := service.NewFinalizeService(repo, sessions, store)

	serviceDeps := jobHandler.ServiceDependencies{
		Finalizer: finalizer,
	}

	finalizeConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.FinalizeQueue, cfg.Server.Workers, jobHandler.FinalizeHandler)
	go func() {
		if err := finalizeConsumer.Consume(ctx, serviceDeps); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("finalize consumer error")
		}
	}()

	storeConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.SimpleStoreQueue, cfg.Server.Workers, jobHandler.SimpleStoreHandler)
	go func() {
		if err := storeConsumer.Consume(ctx, serviceDeps); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("simple store consumer error")
		}
	}()

	reaper := service.NewReaper(repo, sessions, cfg.Upload.SessionIdleAge, cfg.Upload.ReaperInterval)
	go reaper.Run(ctx)

	r := gin.Default()
	addHealth(r)

	h := NewHandler(repo, ingest, sessions, store, issuer, cfg.Upload.MaxSizeBytes)
	h.Register(r, RequireAgent(cfg.Auth.JWTSecret), cfg.Storage.Mode != constant.StorageModeMinio)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
