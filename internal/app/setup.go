package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lettermill/lettermill/internal/config"
	"github.com/lettermill/lettermill/internal/identity"
	"github.com/lettermill/lettermill/internal/store"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Initialize storage and seed the admin account",
	Long:  "Creates the flat data files or the Postgres schema and seeds the configured admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		var st store.Store
		switch cfg.StoreBackend {
		case config.StorePostgres:
			pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			fmt.Println("Running migrations...")
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			st = pg
		default:
			fs, err := store.OpenFlat(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("failed to open data dir: %w", err)
			}
			st = fs
		}
		defer st.Close()

		fmt.Println("Seeding admin account...")
		registry := identity.NewRegistry(st, cfg.AdminEmail)
		if err := registry.EnsureAdmin(ctx, cfg.AdminPassword); err != nil {
			return err
		}

		fmt.Printf("Setup complete. Admin account: %s\n", cfg.AdminEmail)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
