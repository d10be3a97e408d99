package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threadspost/internal/config"
	"threadspost/internal/handler"
	"threadspost/internal/infrastructure/alert"
	"threadspost/internal/infrastructure/cache"
	"threadspost/internal/infrastructure/database"
	"threadspost/internal/infrastructure/lock"
	"threadspost/internal/infrastructure/logger"
	"threadspost/internal/infrastructure/metrics"
	"threadspost/internal/infrastructure/mq"
	"threadspost/internal/infrastructure/threads"
	"threadspost/internal/job"
	"threadspost/internal/service"
	"threadspost/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	workerID := flag.Int64("worker-id", 1, "snowflake worker id of this instance")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.Init(&cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := alert.Init(&cfg.Sentry); err != nil {
		zl.Fatal("init sentry", zap.Error(err))
	}
	defer alert.Flush()

	if err := idgen.Init(*workerID); err != nil {
		zl.Fatal("init id generator", zap.Error(err))
	}

	db, err := database.Init(&cfg.Database)
	if err != nil {
		zl.Fatal("init database", zap.Error(err))
	}

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		zl.Fatal("init redis", zap.Error(err))
	}
	defer redisClient.Close()

	producer, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		zl.Fatal("init kafka", zap.Error(err))
	}
	defer producer.Close()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		zl.Fatal("register metrics", zap.Error(err))
	}

	lockFactory := runLockFactory(redisClient, cfg.Scheduler.RunLockTTL)

	dispatcher := job.NewPostDispatcher(db, threads.NewClient(&cfg.Threads), cfg)
	dispatcher.SetLockFactory(lockFactory)

	recovery := job.NewReplyRecovery(db, cfg)
	recovery.SetLockFactory(lockFactory)

	outboxSender := job.NewOutboxSender(db, producer, cfg)

	scheduler := job.NewScheduler()
	if cfg.Scheduler.EnableInProcessCron {
		if err := registerJobs(scheduler, cfg, dispatcher, recovery, outboxSender); err != nil {
			zl.Fatal("register scheduled jobs", zap.Error(err))
		}
		scheduler.Start()
	}

	h := handler.NewHandler(service.NewPersonaService(db), service.NewPostService(db, cfg), dispatcher, recovery)
	router := handler.SetupRouter(h, cfg, prometheus.DefaultGatherer)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		zl.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		zl.Warn("scheduled jobs did not stop in time", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("server shutdown", zap.Error(err))
	}

	zl.Info("server stopped")
}

func runLockFactory(client *redis.Client, ttl time.Duration) job.LockFactory {
	return func(name, owner string) job.RunLocker {
		return lock.NewRunLock(client, name, owner, ttl)
	}
}

func registerJobs(s *job.Scheduler, cfg *config.Config, dispatcher *job.PostDispatcher, recovery *job.ReplyRecovery, outbox *job.OutboxSender) error {
	if err := s.Register(job.JobDispatch, cfg.Scheduler.DispatchSpec, func(ctx context.Context) error {
		_, err := dispatcher.Run(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := s.Register(job.JobReplyRecovery, cfg.Scheduler.RecoverySpec, func(ctx context.Context) error {
		_, err := recovery.Run(ctx)
		return err
	}); err != nil {
		return err
	}
	return s.Register(job.JobOutbox, cfg.Scheduler.OutboxSpec, func(ctx context.Context) error {
		_, err := outbox.Run(ctx)
		return err
	})
}
