package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

var searchLimit int

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", DefaultSearchLimit, "Maximum results to return")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(detailsCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "List catalog titles containing a query",
	Long: `List catalog titles containing the query, case-insensitively, in catalog
order. Use it to find the exact title to pass to 'cinematch recommend'.

Examples:
  cinematch search matrix
  cinematch search "star wars" --limit 5 --human`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	entries := a.svc.Search(args[0], searchLimit)
	if !humanOutput {
		return outputJSON(entries)
	}
	if len(entries) == 0 {
		outputHuman("No titles match %q.\n", args[0])
		return nil
	}
	for _, e := range entries {
		outputHuman("%8d  %s\n", e.MovieID, truncateString(e.Title, 70))
	}
	return nil
}

var detailsCmd = &cobra.Command{
	Use:   "details <movie-id>",
	Short: "Show TMDB metadata for a movie id",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetails,
}

func runDetails(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		exitWithError(ExitError, "movie id must be an integer: %q", args[0])
	}

	a := mustOpenApp()
	defer a.Close()

	item := a.svc.Details(cmd.Context(), id)
	if !humanOutput {
		return outputJSON(item)
	}
	title := item.Title
	if title == "" {
		title = "TMDB #" + args[0]
	}
	outputHuman("%s (%s)\n", title, item.Metadata.Year)
	printRecordHuman(item.Metadata, "  ")
	return nil
}
