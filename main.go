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

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/camden-git/surfaceinspect/config"
	"github.com/camden-git/surfaceinspect/database"
	"github.com/camden-git/surfaceinspect/detection"
	"github.com/camden-git/surfaceinspect/handlers"
	"github.com/camden-git/surfaceinspect/logger"
	"github.com/camden-git/surfaceinspect/media"
	"github.com/camden-git/surfaceinspect/metrics"
	"github.com/camden-git/surfaceinspect/repository"
	"github.com/camden-git/surfaceinspect/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "surfaceinspect",
		Short:        "Building surface inspection API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "fetch-model",
		Short: "Download the detection model to MODEL_PATH if it is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetchModel(cmd.Context())
		},
	})

	return root
}

func setup() (config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, appLog, nil
}

func runFetchModel(ctx context.Context) error {
	cfg, appLog, err := setup()
	if err != nil {
		return err
	}
	defer appLog.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	return detection.EnsureModel(ctx, nil, cfg.ModelPath, cfg.ModelURL, appLog)
}

func firebaseApp(ctx context.Context, cfg config.Config) (*firebase.App, error) {
	appCfg := database.FirebaseAppConfig{
		DatabaseURL:        cfg.FirebaseDatabaseURL,
		ProjectID:          cfg.FirebaseProjectID,
		ServiceAccountJSON: cfg.FirebaseServiceAccountJSON,
	}
	if cfg.FirebaseServiceAccountJSON == "" && cfg.HasServiceAccount() {
		appCfg.ServiceAccountPath = cfg.FirebaseServiceAccountPath
	}
	return database.NewFirebaseApp(ctx, appCfg)
}

func openStore(ctx context.Context, cfg config.Config, app func() (*firebase.App, error), appLog *logger.Logger) (database.DocumentStore, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendFirebase:
		fbApp, err := app()
		if err != nil {
			return nil, err
		}
		appLog.Info("Using Firebase Realtime Database", "url", cfg.FirebaseDatabaseURL)
		return database.NewFirebaseStore(ctx, fbApp)
	case config.StoreBackendSQLite:
		db, err := database.InitGormDB(cfg.DatabasePath, appLog)
		if err != nil {
			return nil, err
		}
		appLog.Info("Using SQLite document store", "path", cfg.DatabasePath)
		return database.NewSQLiteStore(db)
	default:
		appLog.Warn("Using in-memory document store, data is lost on restart")
		return database.NewMemoryStore(), nil
	}
}

func tokenVerifier(ctx context.Context, cfg config.Config, app func() (*firebase.App, error), appLog *logger.Logger) (services.TokenVerifier, error) {
	if cfg.AuthVerifier == config.AuthVerifierFirebase {
		fbApp, err := app()
		if err != nil {
			return nil, err
		}
		return services.NewFirebaseVerifier(ctx, fbApp)
	}
	return services.NewCertVerifier(cfg.FirebaseProjectID, nil, appLog)
}

func runServe(ctx context.Context) error {
	cfg, appLog, err := setup()
	if err != nil {
		return err
	}
	defer appLog.Sync()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		fbApp    *firebase.App
		fbAppErr error
		fbOnce   bool
	)
	app := func() (*firebase.App, error) {
		if !fbOnce {
			fbApp, fbAppErr = firebaseApp(ctx, cfg)
			fbOnce = true
		}
		return fbApp, fbAppErr
	}

	store, err := openStore(ctx, cfg, app, appLog)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer store.Close()

	verifier, err := tokenVerifier(ctx, cfg, app, appLog)
	if err != nil {
		return fmt.Errorf("failed to set up token verification: %w", err)
	}

	artifacts, err := media.NewLocalStorage(cfg.UploadFolder, appLog)
	if err != nil {
		return fmt.Errorf("failed to initialize upload storage: %w", err)
	}

	detectorOpts := detection.Options{
		Backend:   cfg.DetectorBackend,
		ModelPath: cfg.ModelPath,
		ModelURL:  cfg.ModelURL,
		NamesPath: cfg.ModelNamesPath,
		RemoteURL: cfg.DetectorURL,
	}
	for _, warning := range detectorOpts.Warnings() {
		appLog.Warn("detection: " + warning)
	}
	factory, err := detection.NewFactory(detectorOpts, appLog)
	if err != nil {
		return err
	}
	detectors := detection.NewProvider(factory, appLog)
	defer detectors.Close()

	// load the detector (and download the model) outside any request timeout
	go func() {
		if _, err := detectors.Get(ctx); err != nil {
			appLog.Warn("detection: background warm-up failed, retrying on first analysis", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Auth: services.NewAuthService(verifier, appMetrics, appLog),
		Inspections: services.NewInspectionService(
			repository.NewStoreInspectionRepository(store, cfg.InspectionListLimit, appLog),
			artifacts,
			detectors,
			cfg.ConfidenceThreshold,
			cfg.MaxImagePixels,
			appMetrics,
			appLog,
		),
		Profiles:       services.NewProfileService(repository.NewStoreProfileRepository(store), appLog),
		Artifacts:      artifacts,
		Detector:       detectors,
		Metrics:        appMetrics,
		Log:            appLog,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})

	appLog.Info("Configuration loaded",
		"store", cfg.StoreBackend,
		"auth_verifier", cfg.AuthVerifier,
		"detector", cfg.DetectorBackend,
		"uploads", cfg.UploadFolder,
		"confidence", cfg.ConfidenceThreshold,
	)

	serverAddr := ":" + cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 180 * time.Second, // first analysis may wait for the model download
		IdleTimeout:  120 * time.Second,
		ErrorLog:     appLog.StdLog(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("Server listening", "addr", serverAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	appLog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
