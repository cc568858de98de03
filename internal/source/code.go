package source

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rehabmohamed2/CodeGuard-project/internal/snippet"
)

// CodeReader handles plain source and text files. The whole file is one
// block.
type CodeReader struct{}

func (p *CodeReader) Read(r io.Reader, filename string) (*snippet.Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8 text", filename)
	}

	src := &snippet.Source{Filename: filename}
	text := strings.TrimPrefix(string(data), "\ufeff")
	if strings.TrimSpace(text) != "" {
		src.Blocks = []snippet.Block{{Text: text, StartLine: 1}}
	}
	return src, nil
}
