package source

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/rehabmohamed2/CodeGuard-project/internal/snippet"
)

// codeLanguages are fence info strings accepted as C-family code. An
// unlabeled fence is accepted too.
var codeLanguages = map[string]bool{
	"c": true, "h": true, "cpp": true, "c++": true, "cc": true, "cxx": true, "hpp": true,
}

// MarkdownReader extracts fenced and indented code blocks using goldmark.
type MarkdownReader struct{}

func (p *MarkdownReader) Read(r io.Reader, filename string) (*snippet.Source, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	out := &snippet.Source{Filename: filename}

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			lang := strings.ToLower(string(node.Language(src)))
			if lang != "" && !codeLanguages[lang] {
				return ast.WalkSkipChildren, nil
			}
			addCodeBlock(out, node, src)
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			addCodeBlock(out, node, src)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk markdown: %w", err)
	}
	return out, nil
}

func addCodeBlock(out *snippet.Source, n ast.Node, src []byte) {
	lines := n.Lines()
	if lines.Len() == 0 {
		return
	}
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	code := strings.TrimRight(buf.String(), "\n")
	if strings.TrimSpace(code) == "" {
		return
	}
	line := bytes.Count(src[:lines.At(0).Start], []byte("\n")) + 1
	out.Blocks = append(out.Blocks, snippet.Block{
		Text:      code,
		Origin:    fmt.Sprintf("code block %d", len(out.Blocks)+1),
		StartLine: line,
	})
}
