package source

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/rehabmohamed2/CodeGuard-project/internal/snippet"
)

// HTMLReader extracts <pre> blocks, and multi-line <code> elements outside
// them, from HTML files.
type HTMLReader struct{}

func (p *HTMLReader) Read(r io.Reader, filename string) (*snippet.Source, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	out := &snippet.Source{Filename: filename}
	add := func(code string) {
		code = strings.Trim(code, "\n")
		if strings.TrimSpace(code) == "" {
			return
		}
		out.Blocks = append(out.Blocks, snippet.Block{
			Text:   code,
			Origin: fmt.Sprintf("code block %d", len(out.Blocks)+1),
		})
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "header":
				return
			case "pre":
				add(textContent(n))
				return
			case "code":
				if t := textContent(n); strings.Contains(t, "\n") {
					add(t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}

// textContent concatenates text nodes without trimming, so indentation and
// line breaks inside code survive. <br> becomes a newline.
func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			buf.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}
