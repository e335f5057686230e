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

	"iot-ledger-backend/config"
	"iot-ledger-backend/internal/api"
	"iot-ledger-backend/internal/db"
	"iot-ledger-backend/internal/device"
	"iot-ledger-backend/internal/identity"
	"iot-ledger-backend/internal/ledger"
	"iot-ledger-backend/internal/notification"
	"iot-ledger-backend/internal/session"
	"iot-ledger-backend/internal/storage"
	"iot-ledger-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "iot-ledger ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Println("VAPID keys are not configured, web push is disabled")
	}
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")
	appStore := store.NewGormStore(gormDB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signer, err := identity.NewSigner(cfg.Chain.OperatorKey)
	if err != nil {
		logger.Fatalf("failed to load operator key: %v", err)
	}
	if signer.Key() == nil {
		logger.Println("no operator key configured, ledger writes will be simulated")
	} else {
		logger.Printf("ledger writes signed by %s", signer.Address().Hex())
	}

	var client ledger.Client
	eth, err := ledger.Dial(ctx, cfg.Chain, signer)
	if err != nil {
		logger.Printf("ledger unavailable, running offline: %v", err)
		client = ledger.Offline{Err: err}
	} else {
		defer eth.Close()
		client = eth
		logger.Printf("connected to ledger at %s", cfg.Chain.RPCURL)
	}
	reader := ledger.NewReader(client)
	writer := ledger.NewWriter(client)

	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, &webpushOptions)
	workerPool.Start(ctx)

	resolver := session.NewResolver(cfg.Chain.AdminAddress, reader, client)
	sessions := session.NewManager(ctx, resolver, client, appStore, workerPool)

	devices := device.NewService(storage.NewPublisher(cfg.Storage), signer, writer, reader, appStore)

	handler := api.NewHandler(api.Deps{
		Sessions: sessions,
		Devices:  devices,
		Writer:   writer,
		Reader:   reader,
		Store:    appStore,
		WebPush:  &webpushOptions,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handler, cfg.Server),
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	sessions.Close(shutdownCtx)
	cancel()

	logger.Println("Server gracefully stopped")
}
