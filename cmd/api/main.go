package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/guildmarket/api/routes"
	"github.com/angelmondragon/guildmarket/internal/bot"
	"github.com/angelmondragon/guildmarket/internal/capabilities"
	"github.com/angelmondragon/guildmarket/internal/inventory"
	"github.com/angelmondragon/guildmarket/internal/notifications"
	"github.com/angelmondragon/guildmarket/internal/orders"
	"github.com/angelmondragon/guildmarket/internal/stats"
	"github.com/angelmondragon/guildmarket/internal/suppliers"
	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/db"
	"github.com/angelmondragon/guildmarket/pkg/instance"
	"github.com/angelmondragon/guildmarket/pkg/logger"
	"github.com/angelmondragon/guildmarket/pkg/metrics"
	"github.com/angelmondragon/guildmarket/pkg/migrate"
	"github.com/angelmondragon/guildmarket/pkg/outbox"
	"github.com/angelmondragon/guildmarket/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api exited with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(registry)
	orderMetrics := metrics.NewOrderMetrics(registry)
	notificationMetrics := metrics.NewNotificationMetrics(registry)

	// Interactions arrive over the webhook; the session is only used for REST calls.
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return err
	}
	dispatcher, err := notifications.NewDiscordDispatcher(session, logg, notificationMetrics)
	if err != nil {
		return err
	}

	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	supplierSvc, err := suppliers.NewService(suppliers.NewRepository(conn), dbClient, emitter)
	if err != nil {
		return err
	}
	inventorySvc, err := inventory.NewService(inventory.NewRepository(conn), dbClient, emitter, supplierSvc)
	if err != nil {
		return err
	}
	capabilitySvc, err := capabilities.NewService(redisClient, cfg.Orders.CapabilityTTL)
	if err != nil {
		return err
	}
	statsSvc, err := stats.NewService(stats.NewRepository(conn))
	if err != nil {
		return err
	}
	orderRepo := orders.NewRepository(conn)
	orderSvc, err := orders.NewService(orders.Deps{
		Repo:         orderRepo,
		Tx:           dbClient,
		Outbox:       emitter,
		Inventory:    inventorySvc,
		Suppliers:    supplierSvc,
		Notifier:     dispatcher,
		Capabilities: capabilitySvc,
		Limiter:      redisClient,
		Metrics:      orderMetrics,
		Logger:       logg,
		Config: orders.Config{
			CustomerPageSize: cfg.Orders.CustomerPageSize,
			SupplierPageSize: cfg.Orders.SupplierPageSize,
			RateLimit:        cfg.Orders.RateLimit,
			RateWindow:       cfg.Orders.RateWindow,
		},
	})
	if err != nil {
		return err
	}

	app, err := bot.NewApp(bot.Deps{
		Suppliers:    supplierSvc,
		Inventory:    inventorySvc,
		Orders:       orderSvc,
		Stats:        statsSvc,
		Capabilities: capabilitySvc,
		Logger:       logg,
	})
	if err != nil {
		return err
	}

	verifyKey, err := cfg.Discord.VerifyKey()
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID("local"),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:           dbClient,
			Redis:        redisClient,
			Gatherer:     registry,
			HTTPMetrics:  httpMetrics,
			Interactions: app,
			VerifyKey:    verifyKey,
			Stats:        statsSvc,
			Orders:       orderRepo,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
