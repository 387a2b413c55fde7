package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sysdesign-ai/internal/config"
	"sysdesign-ai/internal/platform/logger"
	mysqlClient "sysdesign-ai/internal/platform/mysql"
	rabbitmqClient "sysdesign-ai/internal/platform/rabbitmq"
	redisClient "sysdesign-ai/internal/platform/redis"
	"sysdesign-ai/internal/repository"
	"sysdesign-ai/internal/worker"
)

type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	MySQL        *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	ExportWorker *worker.ExportArchiveWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}

	app := &App{Config: cfg, Logger: log, StartedAt: time.Now()}

	app.MySQL, err = mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Redis, err = redisClient.New(ctx, cfg.Redis)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.ExportQueue)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	exportRepo := repository.NewPlanExportRepository(app.MySQL)
	app.ExportWorker = worker.NewExportArchiveWorker(app.MQConn, exportRepo, cfg.RabbitMQ.ExportQueue, log)
	if err := app.ExportWorker.Start(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("start export worker failed: %w", err)
	}

	log.Info("bootstrap finished",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("redis", cfg.Redis.Addr),
		zap.String("export_queue", cfg.RabbitMQ.ExportQueue),
	)
	return app, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.ExportWorker != nil {
		a.ExportWorker.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
