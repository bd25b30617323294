package main

import (
	"github.com/spf13/cobra"

	"github.com/marco/cinematch/internal/history"
)

var (
	historyUser     string
	historyPassword string
	historyGenres   bool
	historyLimit    int
)

func init() {
	historyCmd.Flags().StringVarP(&historyUser, "user", "u", "", "User whose history to show (required)")
	historyCmd.Flags().StringVar(&historyPassword, "password", "", "Password for --user (default $CINEMATCH_PASSWORD)")
	historyCmd.Flags().BoolVar(&historyGenres, "genres", false, "Show genre searches instead of movie searches")
	historyCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultRecentLimit, "Maximum entries to show")
	historyCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show a user's recent searches",
	Long: `Show a user's most recent searches, newest first, with metadata for each
movie (or a representative poster for each genre with --genres).`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	ctx := cmd.Context()
	mustAuthenticate(ctx, a, historyUser, historyPassword)

	if historyGenres {
		rows, err := a.svc.RecentGenreSearches(ctx, historyUser, historyLimit)
		if err != nil {
			exitWithError(ExitError, "reading genre history: %v", err)
		}
		if !humanOutput {
			return outputJSON(rows)
		}
		if len(rows) == 0 {
			outputHuman("No genre searches yet.\n")
		}
		for _, r := range rows {
			outputHuman("%s  %s (%s)\n   %s\n", r.SearchedAt.Format("2006-01-02 15:04"), r.Genre, r.Year, r.PosterURL)
		}
		return nil
	}

	rows, err := a.svc.RecentSearches(ctx, historyUser, historyLimit)
	if err != nil {
		exitWithError(ExitError, "reading search history: %v", err)
	}
	if !humanOutput {
		return outputJSON(rows)
	}
	if len(rows) == 0 {
		outputHuman("No searches yet.\n")
	}
	for _, r := range rows {
		outputHuman("%s  %s (%s)\n", r.SearchedAt.Format("2006-01-02 15:04"), r.Title, r.Metadata.Year)
		outputHuman("   %s\n", r.Metadata.PosterURL)
	}
	return nil
}
