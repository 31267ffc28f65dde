// Package app wires configuration, storage and the HTTP server together
// behind a cobra CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lettermill/lettermill/internal/config"
	"github.com/lettermill/lettermill/internal/identity"
	"github.com/lettermill/lettermill/internal/mailbox"
	"github.com/lettermill/lettermill/internal/poller"
	"github.com/lettermill/lettermill/internal/relay"
	"github.com/lettermill/lettermill/internal/server"
	"github.com/lettermill/lettermill/internal/session"
	"github.com/lettermill/lettermill/internal/store"
	"github.com/lettermill/lettermill/internal/tokens"
)

var rootCmd = &cobra.Command{
	Use:   "lettermill",
	Short: "Lettermill webmail backend",
	Long:  "A demo webmail backend: session login, per-user mailboxes, admin broadcast and external relay endpoints",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		registry := identity.NewRegistry(st, cfg.AdminEmail)
		if err := registry.EnsureAdmin(ctx, cfg.AdminPassword); err != nil {
			return fmt.Errorf("failed to ensure admin account: %w", err)
		}

		var sender relay.Sender = relay.Noop{}
		if cfg.RelayURL != "" {
			sender = relay.NewClient(cfg.RelayURL, cfg.RelayTimeout)
		}

		sessions := session.NewManager(registry, st)
		view := mailbox.NewView(st)
		resets := tokens.NewStore(tokens.DefaultTTL)

		srv := server.New(cfg, st, registry, sessions, view, resets, sender)

		if cfg.InboundFeedURL != "" {
			p := poller.New(st, cfg.InboundFeedURL, cfg.PollInterval)
			go p.Run(ctx)
		}

		httpSrv := &http.Server{
			Addr:    cfg.Addr,
			Handler: srv.Handler(),
		}

		errChan := make(chan error, 1)
		go func() {
			log.Printf("Starting Lettermill server on %s", cfg.Addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigChan:
			fmt.Println("\nShutting down gracefully...")
			cancel()

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			return nil
		case err := <-errChan:
			return err
		}
	},
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		return store.OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return store.OpenFlat(cfg.DataDir)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Flags
	rootCmd.PersistentFlags().String("server.addr", ":8080", "HTTP bind address")
	rootCmd.PersistentFlags().String("store.backend", "flat", "Store backend: 'flat' or 'postgres'")
	rootCmd.PersistentFlags().String("store.data_dir", "data", "Data directory for the flat store")
	rootCmd.PersistentFlags().String("database.url", "", "Database connection URL (postgres backend)")
	rootCmd.PersistentFlags().String("admin.email", "", "Admin account email")
	rootCmd.PersistentFlags().String("admin.password", "", "Admin account password")
	rootCmd.PersistentFlags().String("external.api_key", "", "Shared secret for the external relay endpoints")
	rootCmd.PersistentFlags().String("relay.api_url", "", "Outbound relay API base URL (empty disables outbound delivery)")
	rootCmd.PersistentFlags().Duration("relay.timeout", 30*time.Second, "Outbound relay timeout")
	rootCmd.PersistentFlags().String("inbound.feed_url", "", "Inbound mail feed base URL (empty disables polling)")
	rootCmd.PersistentFlags().Duration("inbound.poll_interval", 30*time.Second, "Inbound poll interval")

	// Bind flags to viper
	for _, key := range []string{
		"server.addr", "store.backend", "store.data_dir", "database.url",
		"admin.email", "admin.password", "external.api_key",
		"relay.api_url", "relay.timeout",
		"inbound.feed_url", "inbound.poll_interval",
	} {
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
	}

	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
