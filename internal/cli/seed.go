package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"visionchat/internal/auth"
	"visionchat/internal/store"
)

func newSeedCmd(opts *Options, std streams) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the users table and insert the sample accounts when it is empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			users, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("database: %w", err)
			}
			defer users.Close()

			hasher := auth.NewService(users, nil, cfg.Auth.BcryptCost, 0)
			inserted, err := users.Seed(cmd.Context(), store.SampleUsers, hasher.Hash)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			if !inserted {
				fmt.Fprintln(std.out, "Users already present, nothing to seed.")
				return nil
			}
			for _, u := range store.SampleUsers {
				fmt.Fprintf(std.out, "Created user %s\n", u.Username)
			}
			return nil
		},
	}
}
