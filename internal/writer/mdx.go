package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MDXWriter handles writing result pages to MDX files
type MDXWriter struct {
	mdxDir string
}

// NewMDXWriter creates a new MDX writer
func NewMDXWriter(mdxDir string) *MDXWriter {
	return &MDXWriter{mdxDir: mdxDir}
}

// WriteMDXFile writes a page to <mdxDir>/<slug>.mdx and returns the path.
func (w *MDXWriter) WriteMDXFile(page *Page) (string, error) {
	if page.Slug == "" {
		page.Slug = GenerateSlug(page.Kind + " " + page.Query)
	}

	content, err := w.GenerateMDX(page)
	if err != nil {
		return "", fmt.Errorf("failed to generate MDX: %w", err)
	}

	if err := os.MkdirAll(w.mdxDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create MDX directory: %w", err)
	}

	filePath := filepath.Join(w.mdxDir, page.Slug+".mdx")
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write MDX file: %w", err)
	}

	return filePath, nil
}

// GenerateMDX creates MDX content with YAML frontmatter
func (w *MDXWriter) GenerateMDX(page *Page) (string, error) {
	var sb strings.Builder

	sb.WriteString("---\n")

	// Titles such as "Star Wars: Episode IV" must stay quoted or YAML
	// readers parse them as mappings.
	var docNode yaml.Node
	if err := docNode.Encode(page); err != nil {
		return "", fmt.Errorf("failed to marshal page to YAML: %w", err)
	}
	forceQuotedFields(&docNode, "title", "query", "description")
	yamlData, err := yaml.Marshal(&docNode)
	if err != nil {
		return "", fmt.Errorf("failed to marshal page to YAML: %w", err)
	}

	sb.Write(yamlData)
	sb.WriteString("---\n\n")

	sb.WriteString(fmt.Sprintf("# %s\n\n", page.Title))

	if len(page.Movies) == 0 {
		sb.WriteString("No movies found.\n")
		return sb.String(), nil
	}

	for i, m := range page.Movies {
		sb.WriteString(fmt.Sprintf("## %d. %s", i+1, m.Title))
		if m.Year != "" && m.Year != "N/A" {
			sb.WriteString(fmt.Sprintf(" (%s)", m.Year))
		}
		sb.WriteString("\n\n")

		sb.WriteString(fmt.Sprintf("![%s](%s)\n\n", m.Title, m.CoverImage))

		if m.Description != "" {
			sb.WriteString(m.Description)
			sb.WriteString("\n\n")
		}

		if m.Score != nil {
			sb.WriteString(fmt.Sprintf("- **Similarity**: %.3f\n", *m.Score))
		}
		if m.Rating > 0 {
			sb.WriteString(fmt.Sprintf("- **Rating**: %.1f/10\n", m.Rating))
		}
		if m.Runtime > 0 {
			sb.WriteString(fmt.Sprintf("- **Runtime**: %d minutes\n", m.Runtime))
		}
		if len(m.Genres) > 0 {
			sb.WriteString(fmt.Sprintf("- **Genres**: %s\n", strings.Join(m.Genres, ", ")))
		}
		if m.TMDBID > 0 {
			sb.WriteString(fmt.Sprintf("- [View on TMDB](https://www.themoviedb.org/movie/%d)\n", m.TMDBID))
		}
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// forceQuotedFields sets DoubleQuotedStyle on the named scalar fields
// anywhere in the document, including inside sequences of mappings.
func forceQuotedFields(node *yaml.Node, keys ...string) {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	quoteNode(node, keySet)
}

func quoteNode(node *yaml.Node, keySet map[string]bool) {
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range node.Content {
			quoteNode(c, keySet)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			val := node.Content[i+1]
			if keySet[node.Content[i].Value] && val.Kind == yaml.ScalarNode {
				val.Style = yaml.DoubleQuotedStyle
			}
			quoteNode(val, keySet)
		}
	}
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// GenerateSlug turns free text into a lowercase, hyphenated file name.
func GenerateSlug(text string) string {
	slug := strings.ToLower(text)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = slugInvalid.ReplaceAllString(slug, "")
	slug = slugDashes.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
