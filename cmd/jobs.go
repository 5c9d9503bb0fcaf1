package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-refunds/app/queue"
	"github.com/vibast-solutions/ms-go-refunds/app/service"
	"github.com/vibast-solutions/ms-go-refunds/config"
)

var (
	workerMode bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Refresh stale non-terminal refunds from the gateway",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.RefreshInterval },
			func(s *service.RefundService, ctx context.Context) error {
				return s.RunRefreshPendingBatch(ctx)
			},
		)
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Run refund notification related commands",
}

var notificationsDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch pending terminal-status refund notifications",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"notifications_dispatch",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.NotificationDispatchInterval },
			func(s *service.RefundService, ctx context.Context) error {
				return s.RunDispatchNotificationsBatch(ctx)
			},
		)
	},
}

var webhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Run webhook queue related commands",
}

var webhooksConsumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Reconcile queued refund webhooks",
	Run:   runWebhooksConsume,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(webhooksCmd)
	notificationsCmd.AddCommand(notificationsDispatchCmd)
	webhooksCmd.AddCommand(webhooksConsumeCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.RefundService, ctx context.Context) error,
) {
	app := mustCreateServices()
	defer app.cleanup()

	if workerMode {
		runWorker(name, intervalResolver(app.cfg), app.refundService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(app.refundService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	refundService *service.RefundService,
	fn func(s *service.RefundService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(refundService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(refundService, ctx) })
		}
	}
}

// runWebhooksConsume drains the webhook queue once, or keeps consuming until a signal with --worker.
func runWebhooksConsume(_ *cobra.Command, _ []string) {
	const name = "webhooks_consume"

	app := mustCreateServices()
	defer app.cleanup()

	if app.webhookQueue == nil {
		logrus.WithField("job", name).Fatal("webhook queue is not configured, set WEBHOOKS_ASYNC and REDIS_ADDR")
	}

	consumer := queue.NewConsumer(
		app.webhookQueue,
		app.webhookService.ProcessQueuedWebhook,
		app.webhookService.MarkQueuedWebhookFailed,
		app.cfg.Webhooks.MaxAttempts,
		app.cfg.Webhooks.PopTimeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recovered, err := app.webhookQueue.Recover(ctx)
	if err != nil {
		logrus.WithError(err).WithField("job", name).Fatal("failed to recover in-flight webhook jobs")
	}
	if recovered > 0 {
		logrus.WithField("job", name).WithField("recovered", recovered).Warn("Requeued webhook jobs left in processing")
	}

	if workerMode {
		logrus.WithField("job", name).Info("Webhook consumer started")
		if err := consumer.Run(ctx); err != nil {
			logrus.WithError(err).WithField("job", name).Error("job_failed")
		}
		logrus.WithField("job", name).Info("Worker shutdown requested")
		return
	}

	runJob(name, func() error {
		for {
			processed, err := consumer.ProcessNext(ctx)
			if err != nil {
				return err
			}
			if !processed {
				return nil
			}
		}
	})
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
