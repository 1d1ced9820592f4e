package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"taskboard/internal/api"
	"taskboard/internal/config"
	"taskboard/internal/observability/alerting"
	"taskboard/internal/observability/metrics"
	"taskboard/internal/storage/sqldb"
	"taskboard/internal/task"
	"taskboard/pkg/logger"
)

// main 是 taskboard 服务的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("taskboard 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("TASKBOARD_CONFIG")
	optional := configPath == ""
	if optional {
		configPath = filepath.Join("configs", "taskboard.yaml")
	}

	cfg, err := config.Load(configPath, optional)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	mainLog := logger.Named("main")

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	publisher, err := openPublisher(ctx, cfg.Events)
	if err != nil {
		_ = store.Close()
		return err
	}

	svc := task.NewService(store, publisher)
	defer func() {
		if err := svc.Close(); err != nil {
			mainLog.Warn("关闭任务服务失败", slog.Any("error", err))
		}
	}()

	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	for _, url := range cfg.Alerting.Webhooks {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: url})
	}

	var collector *metrics.Collector
	if cfg.Server.MetricsEnabled == nil || *cfg.Server.MetricsEnabled {
		collector = metrics.NewCollector("taskboard")
	}

	server := api.NewServer(cfg.Server.Address, svc, api.Options{
		IndexPath:       cfg.Server.IndexPath,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		Metrics:         collector,
		Alerts:          alerting.NewFanout(notifiers...),
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,
	})

	mainLog.Info("taskboard 启动",
		slog.String("addr", cfg.Server.Address),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("events", cfg.Events.Driver),
	)
	return server.Start(ctx)
}

func openStore(ctx context.Context, cfg config.StorageConfig) (task.Store, error) {
	if cfg.Driver == "memory" {
		return task.NewMemoryStore(), nil
	}

	db, dialect, err := sqldb.Open(ctx, sqldb.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second,
		BusyTimeout:     time.Duration(cfg.BusyTimeoutMillis) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	if err := sqldb.EnsureSchema(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	return task.NewSQLStore(db), nil
}

func openPublisher(ctx context.Context, cfg config.EventsConfig) (task.Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		publisher := task.NewMemoryPublisher(cfg.Buffer)
		go drainEvents(publisher)
		return publisher, nil
	case "redis":
		return task.NewRedisPublisher(ctx, task.RedisPublisherConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		})
	case "rabbitmq":
		return task.NewRabbitMQPublisher(task.RabbitMQPublisherConfig{
			URL:     cfg.RabbitMQ.URL,
			Queue:   cfg.RabbitMQ.Queue,
			Durable: cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Driver)
	}
}

// drainEvents 把内存通道中的事件写入日志，直到通道关闭。
func drainEvents(publisher *task.MemoryPublisher) {
	eventLog := logger.Named("events")
	for event := range publisher.Events() {
		eventLog.Debug("task event",
			slog.String("event_id", event.ID),
			slog.String("type", string(event.Type)),
			slog.Int64("task_id", event.TaskID),
		)
	}
}
