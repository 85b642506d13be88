// migrate applies the embedded SQL migrations to the Postgres database named in the server
// configuration. The server runs "up" itself when the pgx session store is selected.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charlesng35/authcore/internal/app"
	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/database/migrate"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("authcore-migrate", flag.ContinueOnError)
	configDir := fs.String("config", "", "Directory containing config.yaml")
	rawDirection := fs.String("direction", "up", "Migration direction: up or down")
	list := fs.Bool("list", false, "Print the embedded migration files and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *list {
		names, err := migrate.Sources()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	direction, err := migrate.ParseDirection(*rawDirection)
	if err != nil {
		return err
	}

	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, err := app.LoadConfig(paths...)
	if err != nil {
		return err
	}

	dsn, err := database.PostgresURL(database.Config{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Postgres.Host,
		Port:     cfg.Database.Postgres.Port,
		Name:     cfg.Database.Postgres.Database,
		User:     cfg.Database.Postgres.Username,
		Password: cfg.Database.Postgres.Password,
	})
	if err != nil {
		return fmt.Errorf("database url: %w", err)
	}

	// Run already treats "no change" as success.
	return migrate.Run(dsn, direction)
}
