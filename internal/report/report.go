// Package report renders the model output of a run as an HTML page for
// human review.
package report

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Section is one titled block of markdown in the report.
type Section struct {
	Title    string
	Markdown string
}

// Report is the content of one run's review page.
type Report struct {
	RunID     string
	Generated time.Time
	Sections  []Section
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Render converts each section's markdown to HTML and wraps the result in a
// standalone document.
func Render(r Report) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&buf, "<title>Run %s</title>\n</head>\n<body>\n", html.EscapeString(r.RunID))
	fmt.Fprintf(&buf, "<h1>Run %s</h1>\n", html.EscapeString(r.RunID))
	if !r.Generated.IsZero() {
		fmt.Fprintf(&buf, "<p><time>%s</time></p>\n", r.Generated.UTC().Format(time.RFC3339))
	}
	for _, s := range r.Sections {
		fmt.Fprintf(&buf, "<section>\n<h2>%s</h2>\n", html.EscapeString(s.Title))
		if err := md.Convert([]byte(strings.TrimSpace(s.Markdown)), &buf); err != nil {
			return nil, fmt.Errorf("report: render %q: %w", s.Title, err)
		}
		buf.WriteString("</section>\n")
	}
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}
