package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marco/cinematch/internal/service"
	"github.com/marco/cinematch/internal/writer"
)

var (
	discoverUser     string
	discoverPassword string
	discoverOut      string
)

func init() {
	discoverCmd.PersistentFlags().StringVar(&discoverOut, "out", "", "Also write the list as an MDX page into this directory")
	discoverGenresCmd.Flags().StringVarP(&discoverUser, "user", "u", "", "Record the genres in this user's history")
	discoverGenresCmd.Flags().StringVar(&discoverPassword, "password", "", "Password for --user (default $CINEMATCH_PASSWORD)")

	discoverCmd.AddCommand(discoverYearCmd)
	discoverCmd.AddCommand(discoverGenresCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(genresCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Browse the most popular movies by year or genre",
}

var discoverYearCmd = &cobra.Command{
	Use:   "year <year>",
	Short: "Most popular movies released in a year",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiscoverYear,
}

func runDiscoverYear(cmd *cobra.Command, args []string) error {
	year, err := strconv.Atoi(args[0])
	if err != nil || year <= 0 {
		exitWithError(ExitError, "year must be a positive integer: %q", args[0])
	}

	a := mustOpenApp()
	defer a.Close()

	items, err := a.svc.TopByYear(cmd.Context(), year)
	if err != nil {
		exitWithError(ExitError, "discovering movies for %d: %v", year, err)
	}
	return outputDiscover(writer.KindYear, fmt.Sprintf("Top movies of %d", year), args[0], items)
}

var discoverGenresCmd = &cobra.Command{
	Use:   "genres <name>...",
	Short: "Most popular movies having all the given genres",
	Long: `Most popular movies tagged with every given genre. Names are matched
case-insensitively against TMDB's genre list; run 'cinematch genres' to
see them. Unknown names are skipped with a warning.

Examples:
  cinematch discover genres Action
  cinematch discover genres comedy romance --user alice`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscoverGenres,
}

func runDiscoverGenres(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	if discoverUser != "" {
		mustAuthenticate(cmd.Context(), a, discoverUser, discoverPassword)
	}

	items, warnings, err := a.svc.TopByGenreNames(cmd.Context(), discoverUser, args)
	printWarnings(warnings)
	if errors.Is(err, service.ErrNoGenres) {
		exitWithError(ExitNotFound, "none of %s is a known genre", strings.Join(args, ", "))
	}
	if err != nil {
		exitWithError(ExitError, "discovering movies: %v", err)
	}
	query := strings.Join(args, ", ")
	return outputDiscover(writer.KindGenres, "Top "+query+" movies", query, items)
}

func outputDiscover(kind, title, query string, items []service.Item) error {
	if discoverOut != "" {
		page := &writer.Page{
			Title:       title,
			Kind:        kind,
			Query:       query,
			GeneratedAt: time.Now().UTC(),
			Movies:      pageMovies(items),
		}
		path, err := writer.NewMDXWriter(discoverOut).WriteMDXFile(page)
		if err != nil {
			exitWithError(ExitError, "writing MDX: %v", err)
		}
		if !humanOutput {
			return outputJSON(StatusResponse{Status: "written", Path: path, Count: len(items)})
		}
		outputHuman("Wrote %s\n\n", path)
	}

	if !humanOutput {
		return outputJSON(items)
	}
	outputHuman("%s:\n\n", title)
	printItemsHuman(items)
	return nil
}

var genresCmd = &cobra.Command{
	Use:   "genres",
	Short: "List TMDB movie genres",
	Args:  cobra.NoArgs,
	RunE:  runGenres,
}

func runGenres(cmd *cobra.Command, args []string) error {
	a := mustOpenApp()
	defer a.Close()

	genres, err := a.svc.Genres(cmd.Context())
	if err != nil {
		exitWithError(ExitError, "fetching genres: %v", err)
	}
	if !humanOutput {
		return outputJSON(genres)
	}

	names := make([]string, 0, len(genres))
	for name := range genres {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		outputHuman("%6d  %s\n", genres[name], name)
	}
	return nil
}
