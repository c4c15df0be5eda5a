package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/fielderlane/farmstand/internal/capacity"
	"github.com/fielderlane/farmstand/internal/invoices"
	"github.com/fielderlane/farmstand/internal/messaging"
	"github.com/fielderlane/farmstand/internal/notifications"
	"github.com/fielderlane/farmstand/internal/orders"
	"github.com/fielderlane/farmstand/internal/payments"
	"github.com/fielderlane/farmstand/internal/stock"
	"github.com/fielderlane/farmstand/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "farmstand-api", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("farmstand-api", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime metrics", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	gatewayURL := os.Getenv("GATEWAY_API_URL")
	if gatewayURL == "" {
		logger.Error("GATEWAY_API_URL environment variable is required")
		os.Exit(1)
	}

	gatewayKey := os.Getenv("GATEWAY_API_KEY")
	if gatewayKey == "" {
		logger.Error("GATEWAY_API_KEY environment variable is required")
		os.Exit(1)
	}

	webhookSecret := os.Getenv("GATEWAY_WEBHOOK_SECRET")
	if webhookSecret == "" {
		logger.Error("GATEWAY_WEBHOOK_SECRET environment variable is required")
		os.Exit(1)
	}

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	topic := os.Getenv("NOTIFICATIONS_TOPIC")
	if topic == "" {
		topic = "notifications"
	}
	producer := messaging.NewProducer(strings.Split(kafkaBrokers, ","), topic)
	defer func() { _ = producer.Close() }()
	dispatcher := notifications.NewDispatcher(producer, logger)

	var dedup *payments.EventDedup
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = rdb.Close() }()
		dedup = payments.NewEventDedup(rdb, logger)
	} else {
		logger.Warn("REDIS_ADDR not set, webhook dedup disabled")
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	gateway := payments.NewClient(gatewayURL, gatewayKey, httpClient)

	leadTime := capacity.DefaultLeadTime
	if raw := os.Getenv("SLOT_LEAD_TIME"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			logger.Error("invalid SLOT_LEAD_TIME", "error", err, "value", raw)
			os.Exit(1)
		}
		leadTime = d
	}

	loc := time.Local
	if tz := os.Getenv("SLOT_TIMEZONE"); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			logger.Error("invalid SLOT_TIMEZONE", "error", err, "value", tz)
			os.Exit(1)
		}
	}

	stockRepo := stock.NewRepository(db)
	stockHandler := stock.NewHandler(stockRepo, dispatcher, logger)

	ledger := capacity.NewLedger(capacity.NewRepository(db), leadTime, loc, logger)
	slotsHandler := capacity.NewHandler(ledger, logger)

	orderRepo := orders.NewOrderRepository(db)
	checkout := orders.NewCheckoutService(stockRepo, ledger, gateway, orderRepo, logger)
	ordersHandler := orders.NewHandler(checkout, orderRepo, logger)
	stateMachine := orders.NewService(orderRepo, stockRepo, ledger, dispatcher, logger)

	invoiceRepo := invoices.NewRepository(db)
	invoicesHandler := invoices.NewHandler(invoiceRepo, gateway, logger)

	webhook := payments.NewWebhookHandler(stateMachine, invoiceRepo, dedup, webhookSecret, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /items", telemetry.WithHTTPRoute(stockHandler.HandleListItems))
	mux.HandleFunc("GET /items/{id}", telemetry.WithHTTPRoute(stockHandler.HandleGetItem))
	mux.HandleFunc("POST /items/{id}/restock", telemetry.WithHTTPRoute(stockHandler.HandleRestock))
	mux.HandleFunc("GET /slots", telemetry.WithHTTPRoute(slotsHandler.HandleListSlots))
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(ordersHandler.HandleCheckout))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(ordersHandler.HandleGet))
	mux.HandleFunc("POST /webhooks/payment", telemetry.WithHTTPRoute(webhook.ServeHTTP))
	mux.HandleFunc("GET /invoices/{id}", telemetry.WithHTTPRoute(invoicesHandler.HandleGet))
	mux.HandleFunc("POST /invoices/{id}/pay", telemetry.WithHTTPRoute(invoicesHandler.HandlePay))
	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "farmstand-api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting api service", "port", port, "lead_time", leadTime.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
