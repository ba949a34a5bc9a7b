// Command kvartalictl applies the database schema and inspects stored ratings.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Clark-Hu/kvartali/internal/config"
	"github.com/Clark-Hu/kvartali/internal/logging"
	"github.com/Clark-Hu/kvartali/internal/store"
)

var dbURL string

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kvartalictl",
		Short:         "Administer the kvartali ratings database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "",
		"Postgres connection string (default: DB_URL from the environment or CONFIG_PATH)")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newResultsCmd())
	rootCmd.AddCommand(newKeyCmd())
	return rootCmd
}

// openStore connects using --db-url or the layered configuration.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: "console"})
	url := dbURL
	if url == "" {
		url = cfg.DBURL
	}
	if url == "" {
		return nil, fmt.Errorf("no database configured: pass --db-url or set DB_URL")
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return store.New(connCtx, url, store.OptionsFromConfig(cfg, logging.Logger()))
}
