package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nextmail/mailbridge/config"
	"github.com/nextmail/mailbridge/db"
	"github.com/nextmail/mailbridge/directory"
	"github.com/nextmail/mailbridge/logger"
	"github.com/nextmail/mailbridge/server/adminapi"
	"github.com/nextmail/mailbridge/server/dirsync"
	"github.com/nextmail/mailbridge/stalwart"
)

func main() {
	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")

	// Flags override values from the config file when set.
	fAddr := flag.String("addr", "", "Admin API listen address (overrides config)")
	fAPIKey := flag.String("apikey", "", "Admin API key (overrides config)")
	fLogOutput := flag.String("logoutput", "", "Log output destination: 'stderr', 'stdout', 'syslog', or a file path (overrides config)")
	fLogLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if *fAddr != "" {
		cfg.HTTPAPI.Addr = *fAddr
	}
	if *fAPIKey != "" {
		cfg.HTTPAPI.APIKey = *fAPIKey
	}
	if *fLogOutput != "" {
		cfg.Logging.Output = *fLogOutput
	}
	if *fLogLevel != "" {
		cfg.Logging.Level = *fLogLevel
	}
	if cfg.HTTPAPI.Addr == "" {
		cfg.HTTPAPI.Addr = ":8480"
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.NewDatabaseFromConfig(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()
	database.StartPoolMetrics(ctx)

	provider, err := directory.NewNextcloudProvider(cfg.Directory)
	if err != nil {
		logger.Fatal("failed to configure directory provider", "error", err)
	}

	healthTimeout, err := cfg.Health.GetTimeout()
	if err != nil {
		logger.Fatal("invalid health probe timeout", "error", err)
	}
	healthTTL, err := cfg.Health.GetTTL()
	if err != nil {
		logger.Fatal("invalid health probe TTL", "error", err)
	}

	errChan := make(chan error, 1)
	go adminapi.Start(ctx, database, adminapi.ServerOptions{
		Addr:         cfg.HTTPAPI.Addr,
		APIKey:       cfg.HTTPAPI.APIKey,
		AllowedHosts: cfg.HTTPAPI.AllowedHosts,
		Provider:     provider,
		Checker:      stalwart.NewClient(healthTimeout),
		Events:       dirsync.New(database),
		HealthTTL:    healthTTL,
		TLS:          cfg.HTTPAPI.TLS,
		TLSCertFile:  cfg.HTTPAPI.TLSCertFile,
		TLSKeyFile:   cfg.HTTPAPI.TLSKeyFile,
	}, errChan)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		logger.Error("server error", "error", err)
	}
	cancel()
}
