package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/marco/cinematch/internal/catalog"
	"github.com/marco/cinematch/internal/config"
)

var (
	importCatalogCSV string
	importMatrixText string
)

func init() {
	artifactImportCmd.Flags().StringVar(&importCatalogCSV, "catalog-csv", "", "CSV of movie_id,title rows (required)")
	artifactImportCmd.Flags().StringVar(&importMatrixText, "matrix", "", "Dense similarity matrix, one row per line (required)")
	artifactImportCmd.MarkFlagRequired("catalog-csv")
	artifactImportCmd.MarkFlagRequired("matrix")

	artifactCmd.AddCommand(artifactImportCmd)
	artifactCmd.AddCommand(artifactInfoCmd)
	rootCmd.AddCommand(artifactCmd)
}

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Manage the catalog and similarity matrix",
}

var artifactImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Convert a CSV catalog and text matrix into the artifact files",
	Long: `Convert an exported catalog and similarity matrix into the files
configured under data.catalog and data.matrix.

The catalog CSV has one movie_id,title row per movie; a header row is
skipped. The matrix has one row per line with values separated by commas or
whitespace, in the same order as the catalog. Both are validated before
anything is written, and existing files are replaced atomically, so a
running 'serve' with watch_artifact picks up the new pair at once.

Example:
  cinematch artifact import --catalog-csv movies.csv --matrix similarity.txt`,
	Args: cobra.NoArgs,
	RunE: runArtifactImport,
}

func runArtifactImport(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	csvFile, err := os.Open(importCatalogCSV)
	if err != nil {
		exitWithError(ExitDataError, "opening catalog CSV: %v", err)
	}
	defer csvFile.Close()

	matrixFile, err := os.Open(importMatrixText)
	if err != nil {
		exitWithError(ExitDataError, "opening matrix: %v", err)
	}
	defer matrixFile.Close()

	n, err := catalog.Import(csvFile, matrixFile, cfg.Data.Catalog, cfg.Data.Matrix)
	if err != nil {
		exitWithError(ExitDataError, "importing artifact: %v", err)
	}

	if humanOutput {
		outputHuman("Imported %d movies\n  catalog: %s\n  matrix:  %s\n", n, cfg.Data.Catalog, cfg.Data.Matrix)
		return nil
	}
	return outputJSON(StatusResponse{Status: "imported", Path: cfg.Data.Catalog, Count: n})
}

// ArtifactInfoResponse is the response for artifact info.
type ArtifactInfoResponse struct {
	Catalog string `json:"catalog"`
	Matrix  string `json:"matrix"`
	Movies  int    `json:"movies"`
	Version int    `json:"version"`
}

var artifactInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Validate the artifact files and show their size",
	Args:  cobra.NoArgs,
	RunE:  runArtifactInfo,
}

func runArtifactInfo(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	a := mustLoadArtifact(cfg)

	resp := ArtifactInfoResponse{
		Catalog: cfg.Data.Catalog,
		Matrix:  cfg.Data.Matrix,
		Movies:  a.Len(),
		Version: a.Matrix.Version,
	}
	if !humanOutput {
		return outputJSON(resp)
	}
	outputHuman("Catalog: %s\nMatrix:  %s (version %d)\nMovies:  %d\n", resp.Catalog, resp.Matrix, resp.Version, resp.Movies)
	return nil
}

func loadArtifactQuiet(cfg *config.Config) (*catalog.Artifact, error) {
	return catalog.Load(cfg.Data.Catalog, cfg.Data.Matrix, cfg.Data.AmbiguousTitles)
}
