package explain

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Config carries the sequence shape the attention slices must agree with.
type Config struct {
	SequenceLength int
	// ExpectedSlices, when positive, is the exact number of attention
	// slices every item must carry.
	ExpectedSlices int
	NewlineMarker  string
	// Parallelism bounds ExplainBatch. Zero or less means one goroutine
	// per item.
	Parallelism int
}

// DefaultConfig matches a 512-token RoBERTa encoder.
func DefaultConfig() Config {
	return Config{
		SequenceLength: 512,
		NewlineMarker:  "Ċ",
	}
}

// Validate checks the configuration before any item is processed.
func (c Config) Validate() error {
	if c.SequenceLength < 1 {
		return fmt.Errorf("sequence length must be >= 1, got %d", c.SequenceLength)
	}
	if c.ExpectedSlices < 0 {
		return fmt.Errorf("expected slices must be >= 0, got %d", c.ExpectedSlices)
	}
	if c.NewlineMarker == "" {
		return fmt.Errorf("newline marker is required")
	}
	return nil
}

// Item is one tokenized snippet with its attention slices.
type Item struct {
	TokenTexts []string
	Attention  []Matrix
	Padded     bool
}

// Explain runs aggregation, sentinel sanitization and line reassembly for
// a single item.
func Explain(item Item, cfg Config) ([]float64, error) {
	if len(item.TokenTexts) != cfg.SequenceLength {
		return nil, &ShapeError{Field: "token texts", Got: len(item.TokenTexts), Want: cfg.SequenceLength}
	}
	if cfg.ExpectedSlices > 0 && len(item.Attention) != cfg.ExpectedSlices {
		return nil, &ShapeError{Field: "attention slices", Got: len(item.Attention), Want: cfg.ExpectedSlices}
	}

	salience, err := Aggregate(item.Attention, cfg.SequenceLength)
	if err != nil {
		return nil, err
	}
	return LineScores(item.TokenTexts, Sanitize(salience, item.Padded), cfg.NewlineMarker)
}

// ExplainBatch explains every item concurrently. The first failure fails
// the batch and is returned as an *ItemError. Cancelling ctx stops items
// that have not started; an item already running finishes.
func ExplainBatch(ctx context.Context, items []Item, cfg Config) ([][]float64, error) {
	out := make([][]float64, len(items))

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Parallelism > 0 {
		g.SetLimit(cfg.Parallelism)
	}
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			scores, err := Explain(item, cfg)
			if err != nil {
				return &ItemError{Index: i, Err: err}
			}
			out[i] = scores
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
