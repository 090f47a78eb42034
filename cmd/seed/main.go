// Package main provides a tool to seed a shelfd origin store with shelves.
//
// Usage:
//
//	go run ./cmd/seed demo --data-path ~/shelfcache/db --shelves 50
//	go run ./cmd/seed shelf --data-path ~/shelfcache/db --owner alice --title "Reading" --tag poetry --text "one"
//	go run ./cmd/seed tags --data-path ~/shelfcache/db
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/listenupapp/shelfcache/internal/logger"
	"github.com/listenupapp/shelfcache/internal/store"
)

var (
	dataPath string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a shelfd origin store",
	Long: `seed writes shelves into the badger store that shelfd serves in local mode.
Stop shelfd before seeding; badger allows one process per directory.
shelfd rebuilds its tag search index from the store on startup.`,
	SilenceUsage: true,
}

func init() {
	home, _ := os.UserHomeDir()
	rootCmd.PersistentFlags().StringVarP(&dataPath, "data-path", "d", home+"/shelfcache/db", "Badger data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log store operations")

	rootCmd.AddCommand(newDemoCmd(), newShelfCmd(), newTagsCmd())
}

// openStore opens the origin store at dataPath.
func openStore() (*store.Store, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{
		Writer: os.Stderr,
		Level:  logger.ParseLevel(level),
	})

	s, err := store.New(dataPath, log.Logger, nil)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", dataPath, err)
	}
	return s, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
