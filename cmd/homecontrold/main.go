package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/joltersapp/homecontrol/config"
	"github.com/joltersapp/homecontrol/internal/advisory"
	"github.com/joltersapp/homecontrol/internal/api"
	"github.com/joltersapp/homecontrol/internal/controller"
	"github.com/joltersapp/homecontrol/internal/db"
	"github.com/joltersapp/homecontrol/internal/gateway"
	"github.com/joltersapp/homecontrol/internal/notification"
	"github.com/joltersapp/homecontrol/internal/store"
	"github.com/joltersapp/homecontrol/internal/trigger"
)

func main() {
	logger := log.New(os.Stdout, "homecontrol ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatalf("invalid timezone %q: %v", cfg.Timezone, err)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	gw := gateway.NewClient(&cfg.Gateway)
	advisor := advisory.NewClient(&cfg.Advisory)

	// Push notifications are optional; controllers fall back to a no-op
	// notifier when VAPID keys are absent.
	var notifier controller.Notifier = controller.NoopNotifier()
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		notifier = pool
		logger.Println("push notifications enabled")
	} else {
		logger.Println("VAPID keys not configured, push notifications disabled")
	}

	scheduler := trigger.New(loc)

	pump := controller.NewPump(cfg.Pump, scheduler, gw, appStore, notifier)
	irrigation := controller.NewIrrigation(cfg.Irrigation, scheduler, gw, appStore, advisor, notifier)
	climate := controller.NewClimate(cfg.Climate, scheduler, gw, appStore, notifier)

	if cfg.Pump.Enabled {
		if err := pump.Start(ctx); err != nil {
			logger.Fatalf("failed to start pump controller: %v", err)
		}
	}
	if cfg.Irrigation.Enabled {
		if err := irrigation.Start(ctx); err != nil {
			logger.Fatalf("failed to start irrigation controller: %v", err)
		}
	}
	if cfg.Climate.Enabled {
		if err := climate.Start(ctx); err != nil {
			logger.Fatalf("failed to start climate controller: %v", err)
		}
	}

	// Initialize router
	handler := api.NewHandler(appStore, pump, irrigation, climate, webpushOptions)
	router := api.NewRouter(handler, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	pump.Stop()
	irrigation.Stop()
	climate.Stop()
	scheduler.Stop()
	cancel()

	logger.Println("Server gracefully stopped")
}
