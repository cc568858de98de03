package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rehabmohamed2/CodeGuard-project/internal/snippet"
)

// codeColumns are header names that hold function source, in order of
// preference. Vulnerability datasets name it func_before.
var codeColumns = []string{"func_before", "func", "code", "source"}

// CSVReader reads one function per row from a dataset-style CSV file.
type CSVReader struct{}

func (p *CSVReader) Read(r io.Reader, filename string) (*snippet.Source, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	out := &snippet.Source{Filename: filename}
	if len(records) == 0 {
		return out, nil
	}

	col := codeColumn(records[0])
	if col < 0 {
		return nil, fmt.Errorf("csv has no code column (want one of %s)", strings.Join(codeColumns, ", "))
	}

	for i, row := range records[1:] {
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			continue
		}
		out.Blocks = append(out.Blocks, snippet.Block{
			Text:   row[col],
			Origin: fmt.Sprintf("row %d", i+2), // 1-indexed, after the header
		})
	}
	return out, nil
}

func codeColumn(headers []string) int {
	for _, want := range codeColumns {
		for i, h := range headers {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), want) {
				return i
			}
		}
	}
	return -1
}
