package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/kafka"
	memory_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/mysql"
	redis_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/redis"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/internal/config"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
	"github.com/JoeShih716/go-bank-ledger/pkg/redis"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// application 組裝好的核心與需要在結束時釋放的資源
type application struct {
	core    *usecase.CoreUseCase
	closers []func() error
}

func (a *application) Close() error {
	var errs []error
	// 反序關閉，先停上層
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApplication 依設定選擇儲存、帳戶鎖與事件發送
func buildApplication(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*application, error) {
	app := &application{}
	core, err := app.wire(ctx, cfg, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.core = core
	return app, nil
}

func (app *application) wire(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*usecase.CoreUseCase, error) {
	store, err := openStore(ctx, cfg, logger, app)
	if err != nil {
		return nil, err
	}

	var locker usecase.AccountLocker
	switch cfg.Ledger.Locker {
	case config.LockerRedis:
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client.Close)
		opts := []redis_adapter.LockerOption{redis_adapter.WithLogger(logger)}
		if cfg.Ledger.LockTTL > 0 {
			opts = append(opts, redis_adapter.WithTTL(cfg.Ledger.LockTTL))
		}
		locker = redis_adapter.NewLocker(client, opts...)
	default:
		locker = memory_adapter.NewLocker()
	}

	opts := []usecase.Option{
		usecase.WithLogger(logger),
		usecase.WithMaxAttempts(cfg.Ledger.MaxAttempts),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewPublisher(cfg.Kafka)
		app.closers = append(app.closers, publisher.Close)
		opts = append(opts, usecase.WithPublisher(publisher))
		logger.WithField("topic", cfg.Kafka.Topic).Info("publishing transaction events to kafka")
	}

	return usecase.NewCoreUseCase(store, locker, opts...), nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger, app *application) (usecase.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageMySQL:
		client, err := mysql.NewClient(ctx, cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		logger.Info("Connected to MySQL successfully")
		return mysql_adapter.NewStore(client), nil
	default:
		var opts []memory_adapter.StoreOption
		if cfg.Storage.WALPath != "" {
			walFile, err := wal.NewWAL(cfg.Storage.WALPath)
			if err != nil {
				return nil, err
			}
			app.closers = append(app.closers, walFile.Close)
			opts = append(opts, memory_adapter.WithWAL(walFile))
		}
		store, err := memory_adapter.NewStore(opts...)
		if err != nil {
			return nil, fmt.Errorf("recover memory store: %w", err)
		}
		accounts, err := store.ListAccounts(ctx)
		if err != nil {
			return nil, err
		}
		logger.WithField("wal", cfg.Storage.WALPath).Infof("Loaded %d accounts", len(accounts))
		return store, nil
	}
}
