package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func samplePage() *Page {
	score := float32(0.912)
	return &Page{
		Title:       "Movies like Star Wars: Episode IV",
		Kind:        KindRecommendations,
		Query:       "Star Wars: Episode IV",
		SourceID:    11,
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Movies: []PageMovie{
			{
				Title:       "The Empire Strikes Back",
				TMDBID:      1891,
				Score:       &score,
				CoverImage:  "https://image.tmdb.org/t/p/w500/empire.jpg",
				Year:        "1980",
				ReleaseDate: "1980-05-20",
				Runtime:     124,
				Rating:      8.4,
				Genres:      []string{"Adventure", "Action"},
				Description: "The epic saga continues: Luke trains with Yoda.",
			},
			{
				Title:      "Unknown",
				CoverImage: "https://via.placeholder.com/500x750",
				Year:       "N/A",
			},
		},
	}
}

func TestGenerateMDX(t *testing.T) {
	w := NewMDXWriter(t.TempDir())
	content, err := w.GenerateMDX(samplePage())
	if err != nil {
		t.Fatalf("GenerateMDX() error = %v", err)
	}

	for _, want := range []string{
		"# Movies like Star Wars: Episode IV\n",
		"## 1. The Empire Strikes Back (1980)\n",
		"- **Similarity**: 0.912\n",
		"- **Runtime**: 124 minutes\n",
		"- **Genres**: Adventure, Action\n",
		"(https://www.themoviedb.org/movie/1891)",
		"## 2. Unknown\n",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("MDX missing %q\n%s", want, content)
		}
	}
	if strings.Contains(content, "Unknown (N/A)") {
		t.Error("N/A year should not be rendered in the heading")
	}
}

func TestGenerateMDX_FrontmatterParses(t *testing.T) {
	w := NewMDXWriter(t.TempDir())
	content, err := w.GenerateMDX(samplePage())
	if err != nil {
		t.Fatal(err)
	}

	parts := strings.SplitN(content, "---\n", 3)
	if len(parts) != 3 {
		t.Fatalf("frontmatter not delimited:\n%s", content)
	}

	var got Page
	if err := yaml.Unmarshal([]byte(parts[1]), &got); err != nil {
		t.Fatalf("frontmatter does not parse: %v", err)
	}
	if got.Query != "Star Wars: Episode IV" {
		t.Errorf("Query = %q", got.Query)
	}
	if len(got.Movies) != 2 || got.Movies[0].Description != "The epic saga continues: Luke trains with Yoda." {
		t.Errorf("Movies = %+v", got.Movies)
	}
	if !strings.Contains(parts[1], `query: "Star Wars: Episode IV"`) {
		t.Errorf("query not double quoted:\n%s", parts[1])
	}
}

func TestWriteMDXFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewMDXWriter(dir)
	page := &Page{Title: "Top movies of 1999", Kind: KindYear, Query: "1999"}

	path, err := w.WriteMDXFile(page)
	if err != nil {
		t.Fatalf("WriteMDXFile() error = %v", err)
	}
	if filepath.Base(path) != "year-1999.mdx" {
		t.Errorf("path = %s, want year-1999.mdx", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "No movies found.") {
		t.Errorf("empty page content:\n%s", data)
	}
}

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"recommendations The Matrix", "recommendations-the-matrix"},
		{"Amélie", "amlie"},
		{"  Spaces -- and -- dashes  ", "spaces-and-dashes"},
		{"Star Wars: Episode IV", "star-wars-episode-iv"},
	}
	for _, tt := range tests {
		if got := GenerateSlug(tt.in); got != tt.want {
			t.Errorf("GenerateSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
