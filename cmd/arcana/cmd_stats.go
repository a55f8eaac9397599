package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/arcana/internal/store"
)

var statsDays int

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "trailing window in days")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reading statistics from the local store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if statsDays < 1 {
			return fmt.Errorf("days must be at least 1")
		}

		st, err := store.Open(filepath.Join(cfg.DataDir, "arcana.db"))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		stats, err := st.QueryStats(cmd.Context(), time.Duration(statsDays)*24*time.Hour)
		if err != nil {
			return fmt.Errorf("query stats: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Readings over the last %d days\n\n", statsDays)
		fmt.Fprintf(os.Stdout, "Total:          %d\n", stats.Total)
		fmt.Fprintf(os.Stdout, "Unique users:   %d\n", stats.UniqueUsers)
		fmt.Fprintf(os.Stdout, "Completed:      %d\n", stats.Success)
		fmt.Fprintf(os.Stdout, "Failed:         %d\n", stats.Failure)

		if len(stats.TopUsers) > 0 {
			fmt.Fprintln(os.Stdout, "\nTop users:")
			for i, u := range stats.TopUsers {
				name := u.Username
				if name == "" {
					name = "(anonymous)"
				}
				fmt.Fprintf(os.Stdout, "  %d. %s (%d)\n", i+1, name, u.Count)
			}
		}
		if len(stats.TopQuestions) > 0 {
			fmt.Fprintln(os.Stdout, "\nTop questions:")
			for i, q := range stats.TopQuestions {
				fmt.Fprintf(os.Stdout, "  %d. %s (%d)\n", i+1, q.Question, q.Count)
			}
		}
		return nil
	},
}
