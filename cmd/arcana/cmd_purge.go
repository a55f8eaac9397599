package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/arcana/internal/store"
)

var purgeDays int

func init() {
	purgeCmd.Flags().IntVar(&purgeDays, "days", 90, "purge rows older than this many days")
	rootCmd.AddCommand(purgeCmd)
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Purge aged cooldowns and log entries from the local store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if purgeDays < 1 {
			return fmt.Errorf("days must be at least 1")
		}

		st, err := store.Open(filepath.Join(cfg.DataDir, "arcana.db"))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		cooldowns, entries, err := st.PurgeOlderThan(cmd.Context(), time.Duration(purgeDays)*24*time.Hour)
		if err != nil {
			return fmt.Errorf("purge: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Purged %d cooldown rows and %d log entries older than %d days.\n", cooldowns, entries, purgeDays)
		return nil
	},
}
