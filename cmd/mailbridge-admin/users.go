package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/nextmail/mailbridge/consts"
	"github.com/nextmail/mailbridge/directory"
	"github.com/nextmail/mailbridge/logger"
)

func handleListUsers(ctx context.Context) {
	fs := flag.NewFlagSet("list-users", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	cid := fs.Int64("cid", 0, "Server configuration ID (required)")
	fs.Usage = func() {
		fmt.Println("Usage: mailbridge-admin list-users --cid N")
		fmt.Println("Lists the users provisioned on a server.")
	}
	fs.Parse(os.Args[2:])

	if *cid == 0 {
		fs.Usage()
		os.Exit(1)
	}

	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	if _, err := database.FindConfig(ctx, *cid); err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			logger.Fatal("server configuration not found", "cid", *cid)
		}
		logger.Fatal("failed to load server configuration", "error", err)
	}

	accounts, err := database.ListAccounts(ctx, *cid)
	if err != nil {
		logger.Fatal("failed to list accounts", "error", err)
	}

	if len(accounts) == 0 {
		fmt.Printf("No users provisioned on server %d.\n", *cid)
		return
	}

	fmt.Printf("%-24s %-32s %s\n", "UID", "DISPLAY NAME", "PRIMARY EMAIL")
	for _, account := range accounts {
		address := "-"
		primary, err := database.FindPrimaryEmail(ctx, *cid, account.UserID)
		if err != nil && !errors.Is(err, consts.ErrDBNotFound) {
			logger.Fatal("failed to look up primary email", "uid", account.UserID, "error", err)
		}
		if primary != nil {
			address = primary.Address
		}
		fmt.Printf("%-24s %-32s %s\n", account.UserID, account.DisplayName, address)
	}
}

func handleAddUser(ctx context.Context) {
	fs := flag.NewFlagSet("add-user", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	cid := fs.Int64("cid", 0, "Server configuration ID (required)")
	uid := fs.String("uid", "", "Directory user ID to provision (required)")
	fs.Usage = func() {
		fmt.Println("Usage: mailbridge-admin add-user --cid N --uid USER")
		fmt.Println("Looks the user up in the directory and provisions it on the server.")
	}
	fs.Parse(os.Args[2:])

	if *cid == 0 || *uid == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := loadAdminConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	provider, err := directory.NewNextcloudProvider(cfg.Directory)
	if err != nil {
		logger.Fatal("failed to initialize directory provider", "error", err)
	}

	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	if _, err := database.FindConfig(ctx, *cid); err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			logger.Fatal("server configuration not found", "cid", *cid)
		}
		logger.Fatal("failed to load server configuration", "error", err)
	}

	user, err := provider.GetUser(ctx, *uid)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			logger.Fatal("user not found in directory", "uid", *uid)
		}
		logger.Fatal("failed to look up user in directory", "uid", *uid, "error", err)
	}

	passwordHash, err := provider.PasswordHash(ctx, user.UID)
	if err != nil {
		logger.Fatal("failed to derive password hash", "uid", user.UID, "error", err)
	}

	account, err := database.CreateIndividualAccount(ctx, *cid, user.UID, user.DisplayName, passwordHash)
	if err != nil {
		if errors.Is(err, consts.ErrDBUniqueViolation) {
			logger.Fatal("user is already provisioned on this server", "cid", *cid, "uid", user.UID)
		}
		logger.Fatal("failed to create account", "error", err)
	}

	if user.Email != nil {
		if _, err := database.SetPrimaryEmail(ctx, *cid, user.UID, *user.Email); err != nil {
			logger.Fatal("failed to set primary email", "uid", user.UID, "error", err)
		}
	}

	fmt.Printf("Provisioned user %s on server %d (display name %q)\n", account.UserID, *cid, account.DisplayName)
}

func handleRemoveUser(ctx context.Context) {
	fs := flag.NewFlagSet("remove-user", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "Path to TOML configuration file")
	cid := fs.Int64("cid", 0, "Server configuration ID (required)")
	uid := fs.String("uid", "", "User ID to remove (required)")
	fs.Usage = func() {
		fmt.Println("Usage: mailbridge-admin remove-user --cid N --uid USER")
		fmt.Println("Removes a provisioned user and its email addresses from a server.")
	}
	fs.Parse(os.Args[2:])

	if *cid == 0 || *uid == "" {
		fs.Usage()
		os.Exit(1)
	}

	database, err := openDatabase(ctx, *configPath)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	if err := database.DeleteAccount(ctx, *cid, *uid); err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			logger.Fatal("user is not provisioned on this server", "cid", *cid, "uid", *uid)
		}
		logger.Fatal("failed to remove account", "error", err)
	}
	fmt.Printf("Removed user %s from server %d\n", *uid, *cid)
}
