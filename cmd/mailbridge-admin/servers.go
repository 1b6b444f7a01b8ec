package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nextmail/mailbridge/consts"
	"github.com/nextmail/mailbridge/logger"
	"github.com/nextmail/mailbridge/stalwart"
)

func handleListServers(ctx context.Context) {
	fs := flag.NewFlagSet("list-servers", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	fs.Parse(os.Args[2:])

	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	configs, err := database.ListConfigs(ctx)
	if err != nil {
		logger.Fatal("failed to list server configurations", "error", err)
	}

	if len(configs) == 0 {
		fmt.Println("No servers configured.")
		return
	}

	fmt.Printf("%-6s %-40s %-20s %-12s %s\n", "CID", "ENDPOINT", "USERNAME", "HEALTH", "EXPIRES")
	for _, cfg := range configs {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "(unset)"
		}
		username := cfg.Username
		if username == "" {
			username = "(unset)"
		}
		expires := "-"
		if !cfg.Expires.IsZero() {
			expires = cfg.Expires.Format(time.RFC3339)
		}
		fmt.Printf("%-6d %-40s %-20s %-12s %s\n", cfg.ID, endpoint, username, cfg.Health, expires)
	}
}

func handleCreateServer(ctx context.Context) {
	fs := flag.NewFlagSet("create-server", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	fs.Usage = func() {
		fmt.Println("Usage: mailbridge-admin create-server [--config config.toml]")
		fmt.Println("Creates a new server configuration with empty credentials.")
		fmt.Println("Use update-server to set the endpoint and credentials afterwards.")
	}
	fs.Parse(os.Args[2:])

	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	cfg, err := database.CreateConfig(ctx)
	if err != nil {
		logger.Fatal("failed to create server configuration", "error", err)
	}
	fmt.Printf("Created server configuration with cid %d\n", cfg.ID)
}

func handleUpdateServer(ctx context.Context) {
	fs := flag.NewFlagSet("update-server", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	cid := fs.Int64("cid", 0, "Server configuration ID (required)")
	endpoint := fs.String("endpoint", "", "Mail server API endpoint, e.g. https://mail.example.com/api (required)")
	username := fs.String("username", "", "Admin username for the mail server (required)")
	password := fs.String("password", "", "Admin password; empty keeps the stored password")
	fs.Usage = func() {
		fmt.Println("Usage: mailbridge-admin update-server --cid N --endpoint URL --username USER [--password PASS]")
		fmt.Println("Updates a server's endpoint and credentials. An empty password keeps the old one.")
	}
	fs.Parse(os.Args[2:])

	if *cid == 0 || *endpoint == "" || *username == "" {
		fs.Usage()
		os.Exit(1)
	}

	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	cfg, err := database.FindConfig(ctx, *cid)
	if err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			logger.Fatal("server configuration not found", "cid", *cid)
		}
		logger.Fatal("failed to load server configuration", "error", err)
	}

	updated, err := database.UpdateConfig(ctx, cfg.UpdateCredential(*endpoint, *username, *password))
	if err != nil {
		if errors.Is(err, consts.ErrInvalidEndpoint) {
			logger.Fatal("endpoint is not a valid mail server API URL", "endpoint", *endpoint)
		}
		logger.Fatal("failed to update server configuration", "error", err)
	}
	fmt.Printf("Updated server %d (endpoint %s, username %s)\n", updated.ID, updated.Endpoint, updated.Username)
}

func handleDeleteServer(ctx context.Context) {
	fs := flag.NewFlagSet("delete-server", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	cid := fs.Int64("cid", 0, "Server configuration ID (required)")
	force := fs.Bool("force", false, "Skip the confirmation prompt")
	fs.Usage = func() {
		fmt.Println("Usage: mailbridge-admin delete-server --cid N [--force]")
		fmt.Println("Deletes a server configuration and all its mirrored accounts and emails.")
	}
	fs.Parse(os.Args[2:])

	if *cid == 0 {
		fs.Usage()
		os.Exit(1)
	}

	if !*force {
		fmt.Printf("Delete server %d and all its mirrored accounts? Type 'yes' to continue: ", *cid)
		var answer string
		fmt.Scanln(&answer)
		if answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	if err := database.DeleteConfig(ctx, *cid); err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			logger.Fatal("server configuration not found", "cid", *cid)
		}
		logger.Fatal("failed to delete server configuration", "error", err)
	}
	fmt.Printf("Deleted server %d\n", *cid)
}

func handleProbeServer(ctx context.Context) {
	fs := flag.NewFlagSet("probe-server", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	cid := fs.Int64("cid", 0, "Server configuration ID (required)")
	fs.Usage = func() {
		fmt.Println("Usage: mailbridge-admin probe-server --cid N")
		fmt.Println("Runs a health probe against the server and stores the result.")
	}
	fs.Parse(os.Args[2:])

	if *cid == 0 {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := loadAdminConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	probeTimeout, err := cfg.Health.GetTimeout()
	if err != nil {
		logger.Fatal("invalid health probe timeout", "error", err)
	}
	probeTTL, err := cfg.Health.GetTTL()
	if err != nil {
		logger.Fatal("invalid health probe TTL", "error", err)
	}

	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	serverCfg, err := database.FindConfig(ctx, *cid)
	if err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			logger.Fatal("server configuration not found", "cid", *cid)
		}
		logger.Fatal("failed to load server configuration", "error", err)
	}

	health := stalwart.NewClient(probeTimeout).CheckHealth(ctx, *serverCfg)
	if _, err := database.RefreshConfigHealth(ctx, *cid, health, time.Now().Add(probeTTL)); err != nil {
		logger.Fatal("failed to store health probe result", "error", err)
	}
	fmt.Printf("Server %d health: %s\n", *cid, health)
}
