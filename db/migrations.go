package db

import "embed"

// MigrationsFS embeds the versioned schema migrations consumed by the
// "mailbridge-admin migrate" command.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
