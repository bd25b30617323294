package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marco/cinematch/internal/service"
	"github.com/marco/cinematch/internal/writer"
)

var (
	recommendUser     string
	recommendPassword string
	recommendFormat   string
	recommendOut      string
)

func init() {
	recommendCmd.Flags().StringVarP(&recommendUser, "user", "u", "", "Record the search in this user's history")
	recommendCmd.Flags().StringVar(&recommendPassword, "password", "", "Password for --user (default $CINEMATCH_PASSWORD)")
	recommendCmd.Flags().StringVar(&recommendFormat, "format", "json", "Output format: json, human, or mdx")
	recommendCmd.Flags().StringVar(&recommendOut, "out", "recommendations", "Directory for --format mdx")
	rootCmd.AddCommand(recommendCmd)
}

var recommendCmd = &cobra.Command{
	Use:   "recommend <title>",
	Short: "Recommend movies similar to a title",
	Long: `Recommend the movies most similar to a title from the catalog.

The title is matched case-insensitively: a partial match is accepted, an
exact match wins over a partial one, and a few ambiguous titles prefer a
configured release year (for example "avatar" prefers the 2009 film).

Each recommendation carries its similarity score and TMDB metadata. When
--user is given the search is saved to that user's history.

Examples:
  cinematch recommend "The Dark Knight"
  cinematch recommend avatar --format human
  cinematch recommend "toy story" --user alice --format mdx --out site/pages`,
	Args: cobra.ExactArgs(1),
	RunE: runRecommend,
}

func runRecommend(cmd *cobra.Command, args []string) error {
	if recommendFormat == "human" {
		humanOutput = true
	}
	if recommendFormat != "json" && recommendFormat != "human" && recommendFormat != "mdx" {
		exitWithError(ExitError, "unknown format %q (want json, human, or mdx)", recommendFormat)
	}

	a := mustOpenApp()
	defer a.Close()

	ctx := cmd.Context()
	if recommendUser != "" {
		mustAuthenticate(ctx, a, recommendUser, recommendPassword)
	}

	res := a.svc.Recommend(ctx, service.Request{Username: recommendUser, Title: args[0]})
	printWarnings(res.Warnings)

	switch recommendFormat {
	case "mdx":
		if !res.Found() {
			exitWithError(ExitNotFound, "no movie matching %q", args[0])
		}
		path, err := writer.NewMDXWriter(recommendOut).WriteMDXFile(recommendationPage(res))
		if err != nil {
			exitWithError(ExitError, "writing MDX: %v", err)
		}
		return outputJSON(StatusResponse{Status: "written", Path: path, Count: len(res.Items)})

	case "human":
		if !res.Found() {
			outputHuman("No movie matching %q found in the catalog.\n", args[0])
			os.Exit(ExitNotFound)
		}
		outputHuman("Movies like %s:\n\n", res.Source.Title)
		printItemsHuman(res.Items)
		return nil

	default:
		if err := outputJSON(res); err != nil {
			return err
		}
		if !res.Found() {
			os.Exit(ExitNotFound)
		}
		return nil
	}
}

// recommendationPage converts a result into an MDX page.
func recommendationPage(res *service.Result) *writer.Page {
	page := &writer.Page{
		Title:       "Movies like " + res.Source.Title,
		Kind:        writer.KindRecommendations,
		Query:       res.Source.Title,
		SourceID:    res.Source.MovieID,
		GeneratedAt: time.Now().UTC(),
	}
	page.Movies = pageMovies(res.Items)
	return page
}

func pageMovies(items []service.Item) []writer.PageMovie {
	movies := make([]writer.PageMovie, 0, len(items))
	for _, it := range items {
		m := it.Metadata
		movies = append(movies, writer.PageMovie{
			Title:       it.Title,
			TMDBID:      it.MovieID,
			Score:       it.Score,
			CoverImage:  m.PosterURL,
			Year:        m.Year,
			ReleaseDate: m.ReleaseDate,
			Runtime:     m.Runtime,
			Rating:      m.VoteAverage,
			Genres:      m.Genres,
			Description: m.Overview,
		})
	}
	return movies
}
