package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"cpmsync/internal/config"
	"cpmsync/internal/db"
	"cpmsync/internal/graph"
	"cpmsync/internal/repo"
	"cpmsync/internal/services"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	databaseURL string
	dryRun      bool
	timeout     time.Duration
	debug       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the graph layout the sync service expects",
	Long: `Creates the contexts, typology category and groups, zone category, workflow
process and steps named in the configuration. Nodes that already exist are
left untouched, so the command can be run repeatedly.`,
	Example: `  # Seed the database named by DATABASE_URL:
  seed

  # Check the configured names without touching a database:
  seed --dry-run`,
	RunE:         runSeed,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL (defaults to DATABASE_URL)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Build the layout in memory only")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Read()
	if err != nil {
		return err
	}
	cfg.Log.Debug = cfg.Log.Debug || debug
	cfg.Log.ConfigureZerolog()
	if err := cfg.Graph.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var store graph.Store
	if dryRun {
		store = graph.NewMemoryStore()
	} else {
		url := databaseURL
		if url == "" {
			url = cfg.DatabaseURL
		}
		if url == "" {
			return fmt.Errorf("no database: set DATABASE_URL or --database-url")
		}
		d, err := db.Connect(ctx, url, 2)
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer d.Close()
		if err := d.Migrate(ctx); err != nil {
			return err
		}
		store = repo.NewGraphStore(d.Pool)
	}

	layout := cfg.Graph.Layout()
	if err := graph.EnsureLayout(ctx, store, layout); err != nil {
		return fmt.Errorf("seed layout: %w", err)
	}
	nodes, err := services.ResolveRequiredNodes(ctx, store, layout)
	if err != nil {
		return err
	}

	log.Info().
		Bool("dry_run", dryRun).
		Str("network", nodes.NetworkContext.Name).
		Str("typology", nodes.TypologyContext.Name).
		Str("zones", nodes.ZoneContext.Name).
		Str("workflow", nodes.WorkflowContext.Name).
		Msg("Graph layout ready")
	return nil
}
