// Package commands implements the devconnect command line.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"devconnect/internal/config"
	"devconnect/internal/store"
)

var (
	configPath string
	addrFlag   string
	dbFlag     string
)

var rootCmd = &cobra.Command{
	Use:   "devconnect",
	Short: "DevConnect - collaborative project boards for developer teams",
	Long: `DevConnect serves a JSON API for projects, Kanban phases, tasks and
comments. Run "devconnect serve" to start the API server.`,
	SilenceUsage: true,
	Version:      "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "listen address (overrides ADDR)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "database URL or SQLite path (overrides DATABASE_URL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

// loadConfig resolves file, environment and flags, in that order.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if addrFlag != "" {
		cfg.Addr = addrFlag
	}
	if dbFlag != "" {
		cfg.DatabaseURL = dbFlag
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
}

// openStore connects and brings the schema up to date.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*store.Store, error) {
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	n, err := st.Migrate(ctx)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if n > 0 {
		log.Info("migrations applied", "count", n)
	}
	return st, nil
}
