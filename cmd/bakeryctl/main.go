// Command bakeryctl manages the bakery database: schema migrations,
// reference data seeding and API key revocation.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xenking/bakery-shop/internal/repository"
)

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("bakeryctl failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var databaseURL string
	root := &cobra.Command{
		Use:           "bakeryctl",
		Short:         "Bakery shop database tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return errors.New("database URL is required: set --database-url or DATABASE_URL")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("BAKERY_DATABASE_URL"), "PostgreSQL connection URL")

	root.AddCommand(
		migrateCommand(&databaseURL),
		seedCommand(&databaseURL),
		apiKeyCommand(&databaseURL),
	)
	return root
}

func migrateCommand(databaseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Migrate all the way up",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				if err := repository.MigrateUp(*databaseURL); err != nil {
					return err
				}
				slog.Info("migrated up")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back the given number of migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return errors.Errorf("invalid step count %q", args[0])
					}
					steps = n
				}
				m, err := repository.NewMigrator(*databaseURL)
				if err != nil {
					return err
				}
				defer m.Close()

				if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return errors.Wrap(err, "roll back")
				}
				slog.Info("migrated down", slog.Int("steps", steps))
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				m, err := repository.NewMigrator(*databaseURL)
				if err != nil {
					return err
				}
				defer m.Close()

				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					slog.Info("no migrations applied")
					return nil
				}
				if err != nil {
					return errors.Wrap(err, "read version")
				}
				slog.Info("schema version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
				return nil
			},
		},
	)
	return cmd
}
