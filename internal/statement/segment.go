// Package statement reshapes source snippets into the fixed statement grid
// consumed by the statement-level classifier.
package statement

import (
	"fmt"
	"slices"
	"strings"
)

// Config sizes the statement grid.
type Config struct {
	MaxStatements      int // Rows per snippet.
	MaxStatementLength int // Token ids per row.
}

// DefaultConfig returns the grid shape the statement model was trained on.
func DefaultConfig() Config {
	return Config{
		MaxStatements:      155,
		MaxStatementLength: 20,
	}
}

// Validate rejects negative dimensions. Zero is allowed.
func (c Config) Validate() error {
	if c.MaxStatements < 0 {
		return fmt.Errorf("max statements must be >= 0, got %d", c.MaxStatements)
	}
	if c.MaxStatementLength < 0 {
		return fmt.Errorf("max statement length must be >= 0, got %d", c.MaxStatementLength)
	}
	return nil
}

// Tokenizer encodes one statement without sentinel tokens.
type Tokenizer interface {
	EncodeFixed(text string, n int) []int
	PadID() int
}

// Batch is the statement grid for one snippet.
type Batch struct {
	InputIDs [][]int `json:"input_ids"`
	Mask     []bool  `json:"statement_mask"`
}

// Statements returns the number of rows marked real.
func (b Batch) Statements() int {
	n := 0
	for _, kept := range b.Mask {
		if kept {
			n++
		}
	}
	return n
}

// MaskInts returns the mask as 0/1 values.
func (b Batch) MaskInts() []int {
	out := make([]int, len(b.Mask))
	for i, kept := range b.Mask {
		if kept {
			out[i] = 1
		}
	}
	return out
}

// PaddingRow returns a row holding n copies of the padding id.
func PaddingRow(padID, n int) []int {
	row := make([]int, n)
	for i := range row {
		row[i] = padID
	}
	return row
}

// Segment splits snippet on newlines, drops empty lines, keeps the first
// MaxStatements lines and encodes each into a fixed-width row. Missing rows
// are filled with padding. A row is masked real unless it equals the
// padding row token for token, so a statement that encodes to nothing but
// padding is reported as padding.
func Segment(snippet string, tok Tokenizer, cfg Config) Batch {
	pad := PaddingRow(tok.PadID(), cfg.MaxStatementLength)

	rows := make([][]int, 0, cfg.MaxStatements)
	for _, line := range strings.Split(snippet, "\n") {
		if len(rows) >= cfg.MaxStatements {
			break
		}
		if line == "" {
			continue
		}
		rows = append(rows, tok.EncodeFixed(line, cfg.MaxStatementLength))
	}
	for len(rows) < cfg.MaxStatements {
		rows = append(rows, slices.Clone(pad))
	}

	mask := make([]bool, len(rows))
	for i, row := range rows {
		mask[i] = !slices.Equal(row, pad)
	}
	return Batch{InputIDs: rows, Mask: mask}
}

// BatchSet is a batch of statement grids, one per snippet.
type BatchSet struct {
	InputIDs [][][]int `json:"input_ids"`
	Mask     [][]bool  `json:"statement_mask"`
	Batches  []Batch   `json:"-"`
}

// SegmentBatch segments every snippet with the same tokenizer and shape.
func SegmentBatch(snippets []string, tok Tokenizer, cfg Config) BatchSet {
	set := BatchSet{
		InputIDs: make([][][]int, 0, len(snippets)),
		Mask:     make([][]bool, 0, len(snippets)),
		Batches:  make([]Batch, 0, len(snippets)),
	}
	for _, s := range snippets {
		b := Segment(s, tok, cfg)
		set.Batches = append(set.Batches, b)
		set.InputIDs = append(set.InputIDs, b.InputIDs)
		set.Mask = append(set.Mask, b.Mask)
	}
	return set
}
