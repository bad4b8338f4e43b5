package main

import (
	"log/slog"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"

	"github.com/xenking/bakery-shop/internal/repository"
)

func apiKeyCommand(databaseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Inspect and revoke back-office API keys",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List active API keys",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx := cmd.Context()
				pool, err := repository.NewPool(ctx, *databaseURL)
				if err != nil {
					return errors.Wrap(err, "connect")
				}
				defer pool.Close()

				keys, err := repository.NewAPIKeyRepository(pool).List(ctx)
				if err != nil {
					return err
				}
				for _, k := range keys {
					slog.Info("api key", slog.String("name", k.Name), slog.String("id", k.ID), slog.Any("scopes", k.Scopes))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "revoke <name>",
			Short: "Deactivate the API key with the given name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				pool, err := repository.NewPool(ctx, *databaseURL)
				if err != nil {
					return errors.Wrap(err, "connect")
				}
				defer pool.Close()

				if err := repository.NewAPIKeyRepository(pool).Revoke(ctx, args[0]); err != nil {
					return errors.Wrapf(err, "revoke %s", args[0])
				}
				slog.Info("api key revoked", slog.String("name", args[0]))
				return nil
			},
		},
	)
	return cmd
}
