package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/marco/cinematch/internal/metadata"
	"github.com/marco/cinematch/internal/service"
)

const (
	DefaultSearchLimit = 20

	OverviewWrapWidth = 72
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...any) {
	fmt.Printf(format, args...)
}

// exitHooks run, last registered first, before exitWithError exits.
var exitHooks []func()

// closeOnExit registers closeFn as an exit hook and returns a version of it
// that runs at most once, for the command's normal defer.
func closeOnExit(closeFn func()) func() {
	var once sync.Once
	fn := func() { once.Do(closeFn) }
	exitHooks = append(exitHooks, fn)
	return fn
}

func runExitHooks() {
	for i := len(exitHooks) - 1; i >= 0; i-- {
		exitHooks[i]()
	}
	exitHooks = nil
}

// exitWithError outputs an error in the appropriate format (human or JSON),
// runs the exit hooks and exits.
func exitWithError(code int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	runExitHooks()
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	Count  int    `json:"count,omitempty"`
}

// printWarnings writes warnings to stderr in human mode. JSON output
// carries them in the result.
func printWarnings(warnings []string) {
	if !humanOutput {
		return
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
}

// printItemsHuman prints a numbered movie list.
func printItemsHuman(items []service.Item) {
	if len(items) == 0 {
		outputHuman("No movies found.\n")
		return
	}
	for i, it := range items {
		outputHuman("%d. %s", i+1, it.Title)
		if it.Metadata.Year != metadata.NotAvailable {
			outputHuman(" (%s)", it.Metadata.Year)
		}
		if it.Score != nil {
			outputHuman("  [%.3f]", *it.Score)
		}
		outputHuman("\n")
		printRecordHuman(it.Metadata, "   ")
		outputHuman("\n")
	}
}

func printRecordHuman(r metadata.Record, indent string) {
	if len(r.Genres) > 0 {
		outputHuman("%sGenres: %s\n", indent, strings.Join(r.Genres, ", "))
	}
	if r.Runtime > 0 {
		outputHuman("%sRuntime: %d min\n", indent, r.Runtime)
	}
	if r.VoteAverage > 0 {
		outputHuman("%sRating: %.1f/10\n", indent, r.VoteAverage)
	}
	outputHuman("%sPoster: %s\n", indent, r.PosterURL)
	outputHuman("%s%s\n", indent, wrapText(r.Overview, OverviewWrapWidth, indent))
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// wrapText wraps text to the specified width with indentation on subsequent lines.
func wrapText(text string, width int, indent string) string {
	if len(text) <= width {
		return text
	}

	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() == 0 {
			current.WriteString(word)
		} else if current.Len()+1+len(word) <= width {
			current.WriteString(" ")
			current.WriteString(word)
		} else {
			lines = append(lines, current.String())
			current.Reset()
			current.WriteString(word)
		}
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return strings.Join(lines, "\n"+indent)
}
