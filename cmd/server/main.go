package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"water-service/config"
	"water-service/internal/api"
	"water-service/internal/broker"
	"water-service/internal/gateway"
	"water-service/internal/gateway/click"
	"water-service/internal/gateway/payme"
	"water-service/internal/notify"
	"water-service/internal/redisclient"
	"water-service/internal/service"
	"water-service/internal/store"
	"water-service/internal/util"
	"water-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Observ.LogLevel, "water-service"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting water service")

	tp, err := util.InitTracer("water-service", cfg.Observ.JaegerEndpoint, cfg.Observ.SampleRatio)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connected")

	checks := map[string]api.Pinger{"database": db}

	// Redis backs the access cache, order numbers and notification dedupe.
	// Each has a fallback, so the service also runs without it.
	var (
		cache    service.AccessCache
		sequence service.SequenceSource
		dedupe   worker.Deduper
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, running without cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			cache, sequence, dedupe = redisClient, redisClient, redisClient
			checks["redis"] = redisClient
			logger.Info("Redis connected")
		}
	}

	var events service.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))
	}

	var checkouts []gateway.CheckoutBuilder
	if cfg.Payme.Enabled() {
		checkouts = append(checkouts, payme.Checkout{
			MerchantID: cfg.Payme.MerchantID,
			BaseURL:    cfg.Payme.CheckoutURL,
			ReturnURL:  cfg.Payme.ReturnURL,
		})
	}
	if cfg.Click.Enabled() {
		checkouts = append(checkouts, click.Checkout{
			ServiceID:  cfg.Click.ServiceID,
			MerchantID: cfg.Click.MerchantID,
			BaseURL:    cfg.Click.CheckoutURL,
			ReturnURL:  cfg.Click.ReturnURL,
		})
	}

	orderService := service.NewOrderService(db, db, service.NewDriverResolver(db), sequence, events, service.OrderConfig{
		EtaPerOrder:   cfg.Business.EtaPerOrder,
		NotifyTimeout: cfg.Business.NotifyTimeout,
	})
	paymentService := service.NewPaymentService(db, db, cache, events, cfg.Business.NotifyTimeout, checkouts...)
	subscriptionService := service.NewSubscriptionService(db, cache, cfg.Business.TrialDays, cfg.Business.AccessCacheTTL)

	deps := api.Dependencies{
		Orders:        orderService,
		Payments:      paymentService,
		Subscriptions: subscriptionService,
		Checks:        checks,
		WebhookLimit:  cfg.Webhook.RatePerSecond,
		WebhookBurst:  cfg.Webhook.Burst,
	}
	if cfg.Payme.Enabled() {
		deps.Payme = payme.NewProcessor(paymentService, cfg.Payme.Key)
	}
	if cfg.Click.Enabled() {
		deps.Click = click.NewProcessor(paymentService, cfg.Click.SecretKey, cfg.Click.ServiceID)
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var notificationWorker *worker.NotificationWorker
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		notificationWorker = worker.NewNotificationWorker(consumer, notify.NewLogPusher(), dedupe, cfg.Business.NotifyDedupe)
		go func() {
			if err := notificationWorker.Start(workerCtx); err != nil {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	handler := api.NewHandler(deps)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if notificationWorker != nil {
		if err := notificationWorker.Stop(); err != nil {
			logger.Warn("Failed to stop notification worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
