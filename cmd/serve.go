package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	authclient "github.com/vibast-solutions/lib-go-auth/client"
	authmiddleware "github.com/vibast-solutions/lib-go-auth/middleware"
	authlibservice "github.com/vibast-solutions/lib-go-auth/service"
	"github.com/vibast-solutions/ms-go-refunds/app/controller"
	refundgrpc "github.com/vibast-solutions/ms-go-refunds/app/grpc"
	"github.com/vibast-solutions/ms-go-refunds/app/provider"
	"github.com/vibast-solutions/ms-go-refunds/app/queue"
	"github.com/vibast-solutions/ms-go-refunds/app/repository"
	"github.com/vibast-solutions/ms-go-refunds/app/service"
	"github.com/vibast-solutions/ms-go-refunds/app/types"
	"github.com/vibast-solutions/ms-go-refunds/app/webhook"
	"github.com/vibast-solutions/ms-go-refunds/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start both HTTP (Echo) and gRPC servers for the refunds service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// appServices holds everything the commands share. webhookQueue is nil unless async webhooks are enabled.
type appServices struct {
	cfg            *config.Config
	refundService  *service.RefundService
	webhookService *service.WebhookService
	webhookQueue   *queue.RedisQueue
	cleanup        func()
}

func runServe(_ *cobra.Command, _ []string) {
	app := mustCreateServices()
	defer app.cleanup()
	cfg := app.cfg

	refundController := controller.NewRefundController(app.refundService)
	webhookController := controller.NewWebhookController(app.webhookService)
	grpcRefundServer := refundgrpc.NewServer(app.refundService)

	authGRPCClient, err := authclient.NewGRPCClientFromAddr(context.Background(), cfg.InternalEndpoints.AuthGRPCAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize auth gRPC client")
	}
	defer authGRPCClient.Close()

	internalAuthService := authlibservice.NewInternalAuthService(authGRPCClient)
	echoInternalAuthMiddleware := authmiddleware.NewEchoInternalAuthMiddleware(internalAuthService)
	grpcInternalAuthMiddleware := authmiddleware.NewGRPCInternalAuthMiddleware(internalAuthService)

	e := setupHTTPServer(refundController, webhookController, echoInternalAuthMiddleware, cfg.App.ServiceName, cfg.Webhooks.BodyLimit)
	grpcSrv, lis := setupGRPCServer(cfg, grpcRefundServer, grpcInternalAuthMiddleware, cfg.App.ServiceName)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	go func() {
		logrus.WithField("addr", lis.Addr().String()).Info("Starting gRPC server")
		if err := grpcSrv.Serve(lis); err != nil {
			logrus.WithError(err).Fatal("gRPC server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	grpcSrv.GracefulStop()

	logrus.Info("Server stopped")
}

func setupHTTPServer(
	refundController *controller.RefundController,
	webhookController *controller.WebhookController,
	internalAuthMiddleware *authmiddleware.EchoInternalAuthMiddleware,
	appServiceName string,
	webhookBodyLimit string,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			if v.RequestID != "" {
				fields["request_id"] = v.RequestID
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	registerWebhookRoutes(e, webhookController, webhookBodyLimit)

	internal := []echo.MiddlewareFunc{
		requireRequestID(),
		internalAuthMiddleware.RequireInternalAccess(appServiceName),
	}

	e.GET("/health", refundController.Health, internal...)

	refunds := e.Group("/refunds", internal...)
	refunds.POST("/full", refundController.CreateFullRefund)
	refunds.POST("/partial", refundController.CreatePartialRefund)
	refunds.GET("", refundController.ListRefunds)
	refunds.GET("/:refund_id", refundController.GetRefund)

	charges := e.Group("/charges", internal...)
	charges.GET("/:charge_id/refunds", refundController.ListChargeRefunds)
	charges.GET("/:charge_id/refundable", refundController.GetRefundability)
	charges.POST("/:charge_id/refunds/sync", refundController.SyncChargeRefunds)

	payments := e.Group("/payments", internal...)
	payments.GET("", refundController.ListPayments)

	return e
}

// registerWebhookRoutes mounts the gateway callbacks. They carry neither a request id
// nor internal credentials; the signature authenticates them.
func registerWebhookRoutes(e *echo.Echo, webhookController *controller.WebhookController, bodyLimit string) {
	if bodyLimit == "" {
		bodyLimit = "1M"
	}
	webhooks := e.Group("/webhooks/providers", echomiddleware.BodyLimit(bodyLimit))
	webhooks.POST("/:provider/refunds", webhookController.HandleRefundWebhook)
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func setupGRPCServer(
	cfg *config.Config,
	refundServer *refundgrpc.Server,
	internalAuthMiddleware *authmiddleware.GRPCInternalAuthMiddleware,
	appServiceName string,
) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to listen on gRPC port")
	}

	grpcSrv := grpc.NewServer(
		types.ServerCodec(),
		grpc.ChainUnaryInterceptor(
			refundgrpc.RecoveryInterceptor(),
			refundgrpc.RequestIDInterceptor(),
			refundgrpc.LoggingInterceptor(),
			internalAuthMiddleware.UnaryRequireInternalAccess(appServiceName),
		),
	)
	types.RegisterRefundsServiceServer(grpcSrv, refundServer)

	return grpcSrv, lis
}

func mustCreateServices() *appServices {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	refundRepo := repository.NewRefundRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	eventRepo := repository.NewRefundEventRepository(db)
	deliveryRepo := repository.NewWebhookDeliveryRepository(db)
	txManager := repository.NewTxManager(db)

	tapProvider := provider.NewTapProvider(provider.TapConfig{
		SecretKey:   cfg.Tap.SecretKey,
		BaseURL:     cfg.Tap.BaseURL,
		HTTPTimeout: cfg.Tap.HTTPTimeout,
	})
	providerRegistry := provider.NewRegistry(tapProvider)

	reconciler := service.NewReconciler(refundRepo, paymentRepo, eventRepo)
	refundService := service.NewRefundService(
		refundRepo,
		paymentRepo,
		eventRepo,
		txManager,
		providerRegistry,
		reconciler,
		cfg.Refunds,
		cfg.Tap.WebhookCallbackURL,
		cfg.App.APIKey,
	)

	var redisClient *redis.Client
	var webhookQueue *queue.RedisQueue
	if cfg.Webhooks.Async && strings.TrimSpace(cfg.Redis.Addr) != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = redisClient.Close()
			_ = db.Close()
			logrus.WithError(err).Fatal("Failed to ping redis")
		}
		webhookQueue = queue.NewRedisQueue(redisClient, cfg.Webhooks.QueueKey, cfg.Webhooks.DeadLetterKey)
	}

	verifier := webhook.NewVerifier(cfg.Tap.WebhookSecret)
	var webhookService *service.WebhookService
	if webhookQueue != nil {
		webhookService = service.NewWebhookService(deliveryRepo, providerRegistry, verifier, reconciler, webhookQueue)
	} else {
		webhookService = service.NewWebhookService(deliveryRepo, providerRegistry, verifier, reconciler, nil)
	}

	cleanup := func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logrus.WithError(err).Warn("Failed to close redis client")
			}
		}
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return &appServices{
		cfg:            cfg,
		refundService:  refundService,
		webhookService: webhookService,
		webhookQueue:   webhookQueue,
		cleanup:        cleanup,
	}
}
