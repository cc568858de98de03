// Package source extracts code blocks from uploaded files.
package source

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rehabmohamed2/CodeGuard-project/internal/snippet"
)

// Reader converts raw file bytes into code blocks.
type Reader interface {
	Read(r io.Reader, filename string) (*snippet.Source, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".c":        true,
	".h":        true,
	".cc":       true,
	".cpp":      true,
	".cxx":      true,
	".hpp":      true,
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate reader for a filename.
func ForFile(filename string) (Reader, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".c", ".h", ".cc", ".cpp", ".cxx", ".hpp", ".txt":
		return &CodeReader{}, nil
	case ".md", ".markdown":
		return &MarkdownReader{}, nil
	case ".csv":
		return &CSVReader{}, nil
	case ".html", ".htm":
		return &HTMLReader{}, nil
	case ".pdf":
		return &PDFReader{}, nil
	case ".docx":
		return &DOCXReader{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}
