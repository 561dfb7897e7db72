package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"

	"github.com/techtuto2024/techtuto-backend/internal/avatar"
	"github.com/techtuto2024/techtuto-backend/internal/config"
	"github.com/techtuto2024/techtuto-backend/internal/db"
	"github.com/techtuto2024/techtuto-backend/internal/directory"
	techtutogrpc "github.com/techtuto2024/techtuto-backend/internal/grpc"
	internalhttp "github.com/techtuto2024/techtuto-backend/internal/http"
	"github.com/techtuto2024/techtuto-backend/internal/logger"
	"github.com/techtuto2024/techtuto-backend/internal/notify"
	"github.com/techtuto2024/techtuto-backend/internal/payment"
	"github.com/techtuto2024/techtuto-backend/internal/repository"
	"github.com/techtuto2024/techtuto-backend/internal/reservation"
	"github.com/techtuto2024/techtuto-backend/internal/schedule"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("store close error", slog.Any("err", err))
		}
	}()
	log.Info("storage connected", slog.String("driver", cfg.StoreDriver))

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close error", slog.Any("err", err))
			}
		}()
	}

	var mailer notify.Mailer = notify.NopMailer{Logger: log}
	smtpCfg := notify.SMTPConfig{
		Host:    cfg.SMTPHost,
		Port:    cfg.SMTPPort,
		User:    cfg.SMTPUser,
		Pass:    cfg.SMTPPass,
		From:    cfg.SMTPFrom,
		Timeout: cfg.SMTPTimeout,
	}
	if smtpCfg.Enabled() {
		mailer = notify.NewSMTPMailer(smtpCfg, log)
	} else {
		log.Warn("smtp not configured, emails will be logged only")
	}
	renderer, err := notify.NewRenderer()
	if err != nil {
		return err
	}

	dir := directory.New(store, reservation.NewEmailReserver(redisClient, 30*time.Second))
	server, err := internalhttp.NewServer(cfg, internalhttp.Deps{
		Directory: dir,
		Schedule:  schedule.NewService(dir, store, mailer, renderer, log),
		Mailer:    mailer,
		Renderer:  renderer,
		Payments: payment.NewClient(payment.Config{
			KeyID:     cfg.RazorpayKeyID,
			KeySecret: cfg.RazorpayKeySecret,
			BaseURL:   cfg.RazorpayBaseURL,
		}, nil),
		Avatars: avatar.NewLocalStore(cfg.AvatarDir, cfg.AvatarBaseURL),
		Store:   store,
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("server init failed: %w", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, health, err := techtutogrpc.NewServer(store, cfg.ServiceAuthToken, log)
	if err != nil {
		return fmt.Errorf("grpc init failed: %w", err)
	}
	go health.Run(ctx, 15*time.Second)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			errCh <- fmt.Errorf("grpc listen: %w", err)
			return
		}
		log.Info("grpc listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(listener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown error", slog.Any("err", err))
	}
	grpcServer.GracefulStop()
	return runErr
}

func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connection failed: %w", err)
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("db migrate failed: %w", err)
		}
		return repository.NewPostgresStore(pool), nil
	case "mongo":
		client, err := db.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("mongo connection failed: %w", err)
		}
		store := repository.NewMongoStore(client, cfg.MongoDatabase)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("mongo indexes failed: %w", err)
		}
		return store, nil
	case "memory":
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
