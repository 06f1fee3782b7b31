package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/group-enroller/internal/handler"
	"github.com/kursadbilgin/group-enroller/internal/queue"
	"github.com/kursadbilgin/group-enroller/internal/service"
	"github.com/kursadbilgin/group-enroller/internal/transport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 30 * time.Second
	consumerPrefetch = 1
)

func serveCommand(campaignFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard, the batch scheduler and the trigger consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *campaignFile)
			if err != nil {
				return err
			}
			defer a.close()

			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	registry, err := service.NewAccountRegistry(a.buildRuntime, a.ledgers, a.outcomes, a.batchLocker(), a.cfg.WebhookURL, a.logger)
	if err != nil {
		return err
	}

	var dispatcher service.BatchDispatcher = registry
	var worker *service.TriggerWorker
	if strings.TrimSpace(a.cfg.RabbitMQURL) != "" {
		rabbit, err := queue.NewRabbitMQ(ctx, a.cfg.RabbitMQURL, queue.RabbitMQOptions{
			TriggerTTL: a.cfg.BatchInterval(),
		})
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		a.closers = append(a.closers, rabbit.Close)

		dispatcher, err = service.NewQueueDispatcher(registry, queue.NewRabbitMQPublisher(rabbit), a.logger)
		if err != nil {
			return err
		}
		worker, err = service.NewTriggerWorker(queue.NewRabbitMQConsumer(rabbit, consumerPrefetch, a.logger), registry, 1, a.logger)
		if err != nil {
			return err
		}
	}

	var scheduler *service.Scheduler
	if interval := a.cfg.BatchInterval(); interval > 0 {
		scheduler, err = service.NewScheduler(registry, dispatcher, interval, a.logger)
		if err != nil {
			return err
		}
	}

	for _, account := range a.campaign.Accounts {
		if _, err := registry.Add(ctx, account.ID); err != nil {
			a.logger.Error("failed to add campaign account", zap.String("accountId", account.ID), zap.Error(err))
		}
	}

	server, err := a.newServer(registry, dispatcher)
	if err != nil {
		return err
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", a.cfg.APIPort)
		a.logger.Info("group-enroller api started", zap.String("addr", addr))
		if err := server.Listen(addr); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return server.ShutdownWithTimeout(shutdownTimeout)
	})
	if scheduler != nil {
		g.Go(func() error {
			return scheduler.Start(groupCtx)
		})
	}
	if worker != nil {
		g.Go(func() error {
			return worker.Start(groupCtx)
		})
	}

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := registry.Close(closeCtx); err != nil {
		a.logger.Warn("running batches did not stop in time", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	a.logger.Info("group-enroller stopped")
	return nil
}

func (a *app) newServer(registry *service.AccountRegistry, dispatcher service.BatchDispatcher) (*fiber.App, error) {
	server := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(a.logger),
		DisableStartupMessage: true,
	})
	server.Use(recover.New())
	server.Use(requestid.New())
	server.Use(a.metrics.HTTPMiddleware())

	server.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))

	var checks []handler.ReadinessCheck
	if a.db != nil {
		sqlDB, err := a.db.DB()
		if err != nil {
			return nil, err
		}
		checks = append(checks, handler.SQLCheck(a.cfg.StoreBackend, sqlDB))
	}
	if a.rdb != nil {
		checks = append(checks, handler.RedisCheck(a.rdb))
	}
	handler.RegisterHealthRoutes(server, checks...)

	handler.RegisterDashboardRoutes(server, registry)
	if err := handler.RegisterAccountRoutes(server, registry, dispatcher); err != nil {
		return nil, err
	}
	return server, nil
}
