package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"max.ks1230/beancount-bot/internal/clients/cache"
	"max.ks1230/beancount-bot/internal/clients/git"
	"max.ks1230/beancount-bot/internal/clients/kafka"
	"max.ks1230/beancount-bot/internal/clients/tg"
	"max.ks1230/beancount-bot/internal/config"
	"max.ks1230/beancount-bot/internal/entity/user"
	"max.ks1230/beancount-bot/internal/logger"
	"max.ks1230/beancount-bot/internal/model/auth"
	"max.ks1230/beancount-bot/internal/model/ledger"
	"max.ks1230/beancount-bot/internal/model/messages"
	"max.ks1230/beancount-bot/internal/model/reports"
	"max.ks1230/beancount-bot/internal/model/storage"
	"max.ks1230/beancount-bot/internal/server"
	"max.ks1230/beancount-bot/internal/tracing"
)

const serviceName = "beancount-bot"

type userStorage interface {
	IsAuthorized(ctx context.Context, userID int64) (bool, error)
	Authorize(ctx context.Context, rec user.Record) error
}

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultFile, "Path to the config file")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	logger.Info("Bot init - start")

	conf, err := config.New(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to init config")
	}

	closer, err := tracing.Init(serviceName)
	if err != nil {
		logger.Error("failed to init tracing", zap.Error(err))
	} else {
		defer closer.Close()
	}

	users, err := newUserStorage(conf)
	if err != nil {
		return errors.Wrap(err, "failed to init user storage")
	}
	gate := auth.NewGate(users, conf.Auth())

	store := ledger.NewStore(conf.Beancount().Root())
	if err = store.Watch(); err != nil {
		logger.Error("failed to watch accounts", zap.Error(err))
	}
	defer store.Close()

	client, err := tg.New(conf.Telegram())
	if err != nil {
		return errors.Wrap(err, "failed to init client")
	}

	settings := messages.Settings{
		DefaultCurrency: conf.Beancount().DefaultCurrency(),
		Location:        conf.Beancount().Location(),
		Confirm:         conf.App().ConfirmTransactions(),
		MaxMessageAge:   conf.App().MaxMessageAge(),
		PullBeforeWrite: conf.Git().PullBeforeWrite(),
	}
	var msgService *messages.Service
	if conf.Git().Enabled {
		client.WithTimeout(tg.UpdateTimeout(conf.Git().Timeout()))
		msgService = messages.NewService(client, gate, store, git.New(store.Root(), conf.Git()), settings)
	} else {
		logger.Warn("git is disabled, entries are only written to disk")
		msgService = messages.NewService(client, gate, store, nil, settings)
	}

	generator := reports.NewGenerator(store, nil, settings.Location)
	if len(conf.Memcached().Hosts()) > 0 {
		mc, err := cache.NewMemcache(conf.Memcached())
		if err != nil {
			logger.Error("failed to init memcached, reports are not cached", zap.Error(err))
		} else {
			generator = reports.NewGenerator(store, mc, settings.Location)
			msgService.WithReportCache(mc)
		}
	}
	msgService.WithReports(generator)

	if len(conf.Kafka().Brokers()) > 0 {
		producer, err := kafka.NewProducer(conf.Kafka())
		if err != nil {
			return errors.Wrap(err, "failed to init kafka producer")
		}
		defer producer.Close()
		msgService.WithEvents(producer)
	}

	if addr := conf.App().HTTPAddr(); addr != "" {
		go func() {
			if err := server.New(addr).Run(ctx); err != nil {
				logger.Error("http server stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("Bot init - end")

	client.ListenUpdates(ctx, msgService)
	return nil
}

func newUserStorage(conf *config.Service) (userStorage, error) {
	switch conf.Auth().StoreKind() {
	case config.StoreFile:
		return storage.NewFileStorage(conf.Auth().StateFile())
	case config.StorePostgres:
		return storage.NewPostgresStorage(conf.Postgres())
	}
	return storage.NewInMemStorage(), nil
}
