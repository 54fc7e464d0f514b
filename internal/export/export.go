package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"briefline/internal/domain"
)

// Format renders a deliverable into one concrete representation.
type Format struct {
	Name      string
	MIME      string
	Extension string
	Render    func(d domain.Deliverable) ([]byte, error)
}

// ErrUnknownFormat is returned by Lookup for unregistered format names.
var ErrUnknownFormat = fmt.Errorf("unknown export format")

var registry = map[string]Format{
	"text": {
		Name:      "text",
		MIME:      "text/plain; charset=utf-8",
		Extension: ".txt",
		Render:    renderText,
	},
	"markdown": {
		Name:      "markdown",
		MIME:      "text/markdown; charset=utf-8",
		Extension: ".md",
		Render:    renderMarkdown,
	},
	"document": {
		Name:      "document",
		MIME:      "text/html; charset=utf-8",
		Extension: ".html",
		Render:    renderDocument,
	},
	"slides": {
		Name:      "slides",
		MIME:      "text/html; charset=utf-8",
		Extension: ".slides.html",
		Render:    renderSlides,
	},
}

// Lookup returns the named format.
func Lookup(name string) (Format, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Format{}, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}
	return f, nil
}

// Known reports whether a format name is registered.
func Known(name string) bool {
	_, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Names returns registered format names in stable order.
func Names() []string {
	return []string{"text", "markdown", "document", "slides"}
}

func renderText(d domain.Deliverable) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", d.Title)
	fmt.Fprintf(&buf, "%s\n\n", strings.Repeat("=", len(d.Title)))
	fmt.Fprintf(&buf, "Type: %s\n\n", d.Type)
	buf.WriteString(d.Content)
	if !strings.HasSuffix(d.Content, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func renderMarkdown(d domain.Deliverable) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	fmt.Fprintf(&buf, "title: %q\n", d.Title)
	fmt.Fprintf(&buf, "type: %q\n", d.Type)
	fmt.Fprintf(&buf, "review_state: %s\n", d.ReviewState)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s\n\n", d.Title)
	buf.WriteString(d.Content)
	if !strings.HasSuffix(d.Content, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// renderDocument produces a paginated HTML document, one page per
// second-level heading. Content without headings becomes a single page.
func renderDocument(d domain.Deliverable) ([]byte, error) {
	pages := splitSections(d.Content)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<!doctype html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n", html.EscapeString(d.Title))
	fmt.Fprintf(&buf, "<header><h1>%s</h1><p class=\"doc-type\">%s</p></header>\n", html.EscapeString(d.Title), html.EscapeString(d.Type))
	for i, page := range pages {
		fmt.Fprintf(&buf, "<section class=\"page\" data-page=\"%d\">\n<pre>%s</pre>\n</section>\n", i+1, html.EscapeString(page))
	}
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}

func renderSlides(d domain.Deliverable) ([]byte, error) {
	sections := splitSections(d.Content)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<!doctype html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body class=\"deck\">\n", html.EscapeString(d.Title))
	fmt.Fprintf(&buf, "<section class=\"slide title-slide\"><h1>%s</h1><p>%s</p></section>\n", html.EscapeString(d.Title), html.EscapeString(d.Type))
	for i, s := range sections {
		fmt.Fprintf(&buf, "<section class=\"slide\" data-slide=\"%d\">\n<pre>%s</pre>\n</section>\n", i+1, html.EscapeString(s))
	}
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}

// splitSections breaks markdown-ish content on "## " headings, keeping the
// heading with its section. The original text survives concatenation.
func splitSections(content string) []string {
	lines := strings.Split(content, "\n")
	var sections []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			sections = append(sections, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			flush()
		}
		cur = append(cur, line)
	}
	flush()
	if len(sections) == 0 {
		sections = []string{content}
	}
	return sections
}
