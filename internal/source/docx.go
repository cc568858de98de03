package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/rehabmohamed2/CodeGuard-project/internal/snippet"
)

// DOCXReader handles .docx code listings. Paragraphs are joined line by
// line; each heading starts a new block named after it.
type DOCXReader struct{}

func (p *DOCXReader) Read(r io.Reader, filename string) (*snippet.Source, error) {
	// go-docx needs a ReadSeeker+size, so write to temp file.
	tmp, err := os.CreateTemp("", "codeguard-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("seek temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	out := &snippet.Source{Filename: filename}
	origin := ""
	startLine := 1
	var lines []string
	line := 0

	flush := func() {
		code := strings.Trim(strings.Join(lines, "\n"), "\n")
		if strings.TrimSpace(code) != "" {
			out.Blocks = append(out.Blocks, snippet.Block{Text: code, Origin: origin, StartLine: startLine})
		}
		lines = lines[:0]
	}

	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		line++
		text := docxParagraphText(para)
		if isDocxHeading(para) && strings.TrimSpace(text) != "" {
			flush()
			origin = strings.TrimSpace(text)
			startLine = line + 1
			continue
		}
		if len(lines) == 0 && strings.TrimSpace(text) == "" {
			startLine = line + 1
			continue
		}
		lines = append(lines, text)
	}
	flush()
	return out, nil
}

func isDocxHeading(para *docx.Paragraph) bool {
	if para.Properties == nil || para.Properties.Style == nil {
		return false
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	return strings.HasPrefix(style, "heading") || style == "title"
}

// docxParagraphText keeps leading whitespace, which carries indentation
// in code listings.
func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimRight(buf.String(), " \t")
}
