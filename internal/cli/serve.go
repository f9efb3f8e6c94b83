package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/lightnote/admission"
	"github.com/lightnote/admission/internal/ai"
	"github.com/lightnote/admission/internal/config"
	"github.com/lightnote/admission/internal/logging"
	"github.com/lightnote/admission/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(gin.ReleaseMode)

	limiterOpts := []admission.Option{admission.WithLogger(logger)}
	if cfg.Store.Driver == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		limiterOpts = append(limiterOpts, admission.WithRedis(rdb, cfg.Redis.Prefix))
	}
	limiter := admission.NewLimiter(cfg.Policies(), limiterOpts...)
	limiter.StartJanitor(ctx, cfg.Store.JanitorInterval, cfg.Store.JanitorGrace)

	deps := server.Deps{
		Limiter: limiter,
		Generator: ai.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey,
			ai.WithModel(cfg.AI.Model),
			ai.WithTimeout(cfg.AI.Timeout),
			ai.WithRateLimit(cfg.AI.RPS, cfg.AI.Burst),
			ai.WithLogger(logger)),
		Logger: logger,
	}

	if cfg.Kafka.Enabled {
		producer, err := kgo.NewClient(kgo.SeedBrokers(cfg.Kafka.Brokers...))
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer producer.Close()

		consumer, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.ConsumerGroup(cfg.Kafka.Group),
			kgo.ConsumeTopics(cfg.Kafka.Topic),
		)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		defer consumer.Close()

		monitor := admission.NewRejectionMonitor(consumer, cfg.Kafka.Threshold, cfg.Kafka.Decay, logger)
		go monitor.Run(ctx)

		deps.Publisher = admission.NewKafkaPublisher(producer, cfg.Kafka.Topic, logger)
		deps.Strikes = monitor
	}

	srv := server.New(cfg.Server, deps)

	logger.Info("admission configured",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.Any("limits", cfg.Limits))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if err := srv.Shutdown(context.Background(), cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
