// mailbridge-admin is the operator CLI for the mailbridge daemon: schema
// migrations, server configuration CRUD, and per-server user provisioning.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/nextmail/mailbridge/config"
	"github.com/nextmail/mailbridge/db"
	"github.com/nextmail/mailbridge/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// CLI output goes to stderr in console format unless overridden.
	if _, err := logger.Initialize(config.LoggingConfig{}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	command := os.Args[1]

	switch command {
	case "migrate":
		handleMigrateCommand(ctx)
	case "list-servers":
		handleListServers(ctx)
	case "create-server":
		handleCreateServer(ctx)
	case "update-server":
		handleUpdateServer(ctx)
	case "delete-server":
		handleDeleteServer(ctx)
	case "probe-server":
		handleProbeServer(ctx)
	case "list-users":
		handleListUsers(ctx)
	case "add-user":
		handleAddUser(ctx)
	case "remove-user":
		handleRemoveUser(ctx)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`Mailbridge Admin Tool

Usage:
  mailbridge-admin <command> [options]

Commands:
  migrate         Manage the database schema (up, down, version, force)
  list-servers    List configured mail servers
  create-server   Add a new (empty) server configuration
  update-server   Rotate a server's endpoint and credentials
  delete-server   Remove a server and all its mirrored accounts
  probe-server    Run a health probe against a server
  list-users      List users provisioned on a server
  add-user        Provision a directory user onto a server
  remove-user     Remove a provisioned user from a server
  help            Show this help message

Examples:
  mailbridge-admin migrate up
  mailbridge-admin create-server
  mailbridge-admin update-server --cid 1 --endpoint https://mail.example.com/api --username admin --password secret
  mailbridge-admin add-user --cid 1 --uid alice
  mailbridge-admin list-users --cid 1
`)
}

// loadAdminConfig reads the TOML configuration without requiring the admin
// API sections the daemon needs.
func loadAdminConfig(path string) (*config.Config, error) {
	var cfg config.Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing configuration file '%s': %w", path, err)
	}
	return &cfg, nil
}

// openDatabase connects to the write database from the given config file.
func openDatabase(ctx context.Context, configPath string) (*db.Database, error) {
	cfg, err := loadAdminConfig(configPath)
	if err != nil {
		return nil, err
	}
	return db.NewDatabaseFromConfig(ctx, &cfg.Database)
}
