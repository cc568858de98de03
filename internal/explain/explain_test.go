package explain

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"slices"
	"strings"
	"testing"
)

// diag builds one L×L slice where token i attends only to itself with
// weight w[i].
func diag(w ...float32) Matrix {
	m := make(Matrix, len(w))
	for i := range m {
		m[i] = make([]float32, len(w))
		m[i][i] = w[i]
	}
	return m
}

func approxEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func testConfig(l int) Config {
	cfg := DefaultConfig()
	cfg.SequenceLength = l
	return cfg
}

func TestExplain_TwoLinesIdentityAttention(t *testing.T) {
	// <s> int x = 1 ; \n int y = 2 ; </s> followed by three padding tokens.
	texts := []string{"<s>", "int", "x", "=", "1", ";", "Ċ", "int", "y", "=", "2", ";", "</s>", "<pad>", "<pad>", "<pad>"}
	w := make([]float32, len(texts))
	for i := 0; i < 13; i++ {
		w[i] = 1
	}
	item := Item{
		TokenTexts: texts,
		Attention:  []Matrix{diag(w...), diag(w...)},
		Padded:     true,
	}

	got, err := Explain(item, testConfig(len(texts)))
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	// Each line sums its five tokens; the newline token's salience joins
	// the line it terminates.
	want := []float64{6, 5}
	if !approxEqual(got, want) {
		t.Errorf("line scores = %v, want %v", got, want)
	}
}

func TestExplain_SingleLineWithoutNewline(t *testing.T) {
	item := Item{
		TokenTexts: []string{"<s>", "a", ";", "</s>"},
		Attention:  []Matrix{diag(1, 2, 3, 1)},
	}
	got, err := Explain(item, testConfig(4))
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !approxEqual(got, []float64{1.5}) {
		t.Errorf("line scores = %v, want [1.5]", got)
	}
}

func TestExplain_BlankLineSkipped(t *testing.T) {
	item := Item{
		TokenTexts: []string{"<s>", "a", ";", "Ċ", "Ċ", "b", ";", "</s>"},
		Attention:  []Matrix{diag(0, 1, 1, 1, 1, 1, 1, 0)},
	}
	got, err := Explain(item, testConfig(8))
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !approxEqual(got, []float64{3, 2}) {
		t.Errorf("line scores = %v, want [3 2]", got)
	}
}

func TestLineScores_Empty(t *testing.T) {
	got, err := LineScores(nil, nil, "Ċ")
	if err != nil {
		t.Fatalf("LineScores: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("LineScores(empty) = %#v, want empty non-nil", got)
	}
}

func TestLineScores_LengthMismatch(t *testing.T) {
	_, err := LineScores([]string{"a", "b"}, []float64{1}, "Ċ")
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
	var se *ShapeError
	if !errors.As(err, &se) || se.Got != 2 || se.Want != 1 {
		t.Errorf("ShapeError = %+v", se)
	}
}

func TestStep_Transitions(t *testing.T) {
	tests := []struct {
		name       string
		state      LineState
		text       string
		salience   float64
		last       bool
		wantScores []float64
		wantAcc    float64
	}{
		{"accumulate", LineState{acc: 1}, "x", 0.5, false, nil, 1.5},
		{"separator emits", LineState{acc: 1}, "Ċ", 0.25, false, []float64{1.25}, 0},
		{"separator with empty accumulator", LineState{}, "Ċ", 0.7, false, nil, 0},
		{"last token emits", LineState{acc: 2}, ";", 1, true, []float64{3}, 0},
		{"last token with empty accumulator", LineState{}, ";", 1, true, nil, 1},
		{"marker inside token", LineState{acc: 1}, ";Ċ", 0, false, []float64{1}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Step(tc.state, tc.text, tc.salience, tc.last, "Ċ")
			if !slices.Equal(got.Scores, tc.wantScores) {
				t.Errorf("Scores = %v, want %v", got.Scores, tc.wantScores)
			}
			if got.Pending() != tc.wantAcc {
				t.Errorf("Pending = %v, want %v", got.Pending(), tc.wantAcc)
			}
		})
	}
}

func TestStep_BranchesIndependent(t *testing.T) {
	parent := LineState{Scores: make([]float64, 1, 4), Lines: make([]string, 1, 4), acc: 1}
	a := Step(parent, "Ċ", 1, false, "Ċ")
	b := Step(parent, "Ċ", 5, false, "Ċ")
	if want := []float64{0, 2}; !slices.Equal(a.Scores, want) {
		t.Errorf("a.Scores = %v, want %v", a.Scores, want)
	}
	if want := []float64{0, 6}; !slices.Equal(b.Scores, want) {
		t.Errorf("b.Scores = %v, want %v", b.Scores, want)
	}
	if len(parent.Scores) != 1 {
		t.Errorf("parent modified: %v", parent.Scores)
	}
}

func TestReassemble_LineTexts(t *testing.T) {
	s, err := Reassemble(
		[]string{"<s>", "int", "x", "Ċ", "y", "</s>"},
		[]float64{0, 1, 1, 1, 1, 0},
		"Ċ",
	)
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if want := []string{"<s>intx", "y</s>"}; !slices.Equal(s.Lines, want) {
		t.Errorf("Lines = %q, want %q", s.Lines, want)
	}
}

func TestAggregate_SumsQueryAxisAcrossSlices(t *testing.T) {
	a := Matrix{{0, 1, 0}, {0, 1, 0}, {0, 0, 1}}
	b := Matrix{{1, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	// Received mass: a = [0 2 1], b = [1 0 0], total [1 2 1].
	got, err := Aggregate([]Matrix{a, b}, 3)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !approxEqual(got, []float64{0, 1, 0}) {
		t.Errorf("Aggregate = %v, want [0 1 0]", got)
	}
}

func TestAggregate_Degenerate(t *testing.T) {
	m := Matrix{{0.5, 0.5}, {0.5, 0.5}}
	got, err := Aggregate([]Matrix{m}, 2)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	for i, v := range got {
		if v != 0 || math.IsNaN(v) {
			t.Errorf("got[%d] = %v, want 0", i, v)
		}
	}
}

func TestAggregate_MinZeroMaxOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		l := 2 + rng.Intn(30)
		att := make([]Matrix, 1+rng.Intn(4))
		for s := range att {
			att[s] = make(Matrix, l)
			for q := range att[s] {
				att[s][q] = make([]float32, l)
				for k := range att[s][q] {
					att[s][q][k] = rng.Float32()
				}
			}
		}
		got, err := Aggregate(att, l)
		if err != nil {
			t.Fatalf("trial %d: %v", trial, err)
		}
		lo, hi := got[0], got[0]
		for _, v := range got {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if lo != 0 || math.Abs(hi-1) > 1e-12 {
			t.Errorf("trial %d: min=%v max=%v", trial, lo, hi)
		}
	}
}

func TestAggregate_ShapeErrors(t *testing.T) {
	tests := []struct {
		name   string
		slices []Matrix
		seqLen int
	}{
		{"no slices", nil, 2},
		{"too few rows", []Matrix{{{1, 0}}}, 2},
		{"short row", []Matrix{{{1, 0}, {1}}}, 2},
		{"second slice wrong", []Matrix{diag(1, 1), diag(1, 1, 1)}, 2},
		{"negative length", []Matrix{diag(1, 1)}, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Aggregate(tc.slices, tc.seqLen)
			if !errors.Is(err, ErrShapeMismatch) {
				t.Errorf("err = %v, want ErrShapeMismatch", err)
			}
		})
	}
}

func TestAggregate_NonFinite(t *testing.T) {
	m := diag(1, float32(math.NaN()))
	if _, err := Aggregate([]Matrix{m}, 2); !errors.Is(err, ErrNonFinite) {
		t.Errorf("err = %v, want ErrNonFinite", err)
	}
	m = diag(float32(math.Inf(1)), 1)
	if _, err := Aggregate([]Matrix{m}, 2); !errors.Is(err, ErrNonFinite) {
		t.Errorf("err = %v, want ErrNonFinite", err)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name   string
		in     []float64
		padded bool
		want   []float64
	}{
		{"unpadded zeroes ends", []float64{1, 0.5, 0.2, 0.9}, false, []float64{0, 0.5, 0.2, 0}},
		{"padded zeroes last non-zero", []float64{1, 0.5, 0.3, 0, 0}, true, []float64{0, 0.5, 0, 0, 0}},
		{"padded stray padding salience", []float64{1, 0.5, 0.3, 0, 0.1}, true, []float64{0, 0.5, 0.3, 0, 0}},
		{"padded only start non-zero", []float64{1, 0, 0}, true, []float64{0, 0, 0}},
		{"all zero", []float64{0, 0, 0}, true, []float64{0, 0, 0}},
		{"length one", []float64{0.4}, false, []float64{0}},
		{"empty", []float64{}, true, []float64{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Sanitize(tc.in, tc.padded)
			if !slices.Equal(got, tc.want) {
				t.Errorf("Sanitize = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSanitize_DoesNotModifyInput(t *testing.T) {
	in := []float64{1, 0.5, 1}
	Sanitize(in, false)
	if !slices.Equal(in, []float64{1, 0.5, 1}) {
		t.Errorf("input modified: %v", in)
	}
}

func TestSanitize_ZeroesAtMostTwo(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 50; trial++ {
		in := make([]float64, 1+rng.Intn(20))
		for i := range in {
			if rng.Intn(3) > 0 {
				in[i] = rng.Float64() + 0.01
			}
		}
		padded := rng.Intn(2) == 0
		got := Sanitize(in, padded)
		if got[0] != 0 {
			t.Fatalf("trial %d: index 0 = %v", trial, got[0])
		}
		changed := 0
		for i := range in {
			if in[i] != got[i] {
				changed++
			}
		}
		if changed > 2 {
			t.Errorf("trial %d: %d positions changed", trial, changed)
		}
	}
}

func TestExplain_Idempotent(t *testing.T) {
	texts := []string{"<s>", "a", "Ċ", "b", "c", "Ċ", "d", "</s>"}
	rng := rand.New(rand.NewSource(3))
	att := make([]Matrix, 3)
	for s := range att {
		att[s] = make(Matrix, len(texts))
		for q := range att[s] {
			att[s][q] = make([]float32, len(texts))
			for k := range att[s][q] {
				att[s][q][k] = rng.Float32()
			}
		}
	}
	item := Item{TokenTexts: texts, Attention: att}
	cfg := testConfig(len(texts))

	first, err := Explain(item, cfg)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Explain(item, cfg)
		if err != nil {
			t.Fatalf("Explain: %v", err)
		}
		if !slices.Equal(first, again) {
			t.Fatalf("run %d = %v, first = %v", i, again, first)
		}
	}
}

func TestExplain_LineCountNeverExceedsSourceLines(t *testing.T) {
	sources := []string{
		"a;\nb;\nc;",
		"a;\n\n\nb;",
		"\n\na;\n",
		"single",
	}
	for _, src := range sources {
		texts := []string{"<s>"}
		for i, line := range strings.Split(src, "\n") {
			if i > 0 {
				texts = append(texts, "Ċ")
			}
			if line != "" {
				texts = append(texts, line)
			}
		}
		texts = append(texts, "</s>")

		w := make([]float32, len(texts))
		for i := range w {
			w[i] = float32(i%3) + 1
		}
		got, err := Explain(Item{TokenTexts: texts, Attention: []Matrix{diag(w...)}}, testConfig(len(texts)))
		if err != nil {
			t.Fatalf("%q: %v", src, err)
		}
		nonEmpty := 0
		for _, line := range strings.Split(src, "\n") {
			if line != "" {
				nonEmpty++
			}
		}
		if len(got) > nonEmpty {
			t.Errorf("%q: %d scores for %d non-empty lines", src, len(got), nonEmpty)
		}
		for _, v := range got {
			if v < 0 {
				t.Errorf("%q: negative score %v", src, v)
			}
		}
	}
}

func TestExplain_ShapeChecks(t *testing.T) {
	cfg := testConfig(3)
	item := Item{TokenTexts: []string{"<s>", "a"}, Attention: []Matrix{diag(1, 1, 1)}}
	if _, err := Explain(item, cfg); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("short token texts: err = %v", err)
	}

	cfg.ExpectedSlices = 2
	item = Item{TokenTexts: []string{"<s>", "a", "</s>"}, Attention: []Matrix{diag(1, 2, 1)}}
	if _, err := Explain(item, cfg); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("slice count: err = %v", err)
	}
}

func TestExplain_SequenceLengthOne(t *testing.T) {
	got, err := Explain(Item{TokenTexts: []string{"<s>"}, Attention: []Matrix{{{0.3}}}}, testConfig(1))
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want no lines", got)
	}
}

func TestExplainBatch_PreservesOrder(t *testing.T) {
	items := []Item{
		{TokenTexts: []string{"<s>", "a", ";", "</s>"}, Attention: []Matrix{diag(1, 2, 3, 1)}},
		{TokenTexts: []string{"<s>", "a", "Ċ", "b"}, Attention: []Matrix{diag(0, 1, 1, 1)}},
	}
	cfg := testConfig(4)
	cfg.Parallelism = 1
	got, err := ExplainBatch(context.Background(), items, cfg)
	if err != nil {
		t.Fatalf("ExplainBatch: %v", err)
	}
	if len(got) != 2 || !approxEqual(got[0], []float64{1.5}) || !approxEqual(got[1], []float64{2}) {
		t.Errorf("ExplainBatch = %v", got)
	}
}

func TestExplainBatch_ItemError(t *testing.T) {
	items := []Item{
		{TokenTexts: []string{"<s>", "a", "</s>"}, Attention: []Matrix{diag(0, 1, 0)}},
		{TokenTexts: []string{"<s>", "a", "</s>"}},
	}
	_, err := ExplainBatch(context.Background(), items, testConfig(3))
	var ie *ItemError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want *ItemError", err)
	}
	if ie.Index != 1 || !errors.Is(err, ErrNoAttention) {
		t.Errorf("ItemError = %+v", ie)
	}
}

func TestExplainBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := []Item{{TokenTexts: []string{"<s>", "a", "</s>"}, Attention: []Matrix{diag(0, 1, 0)}}}
	if _, err := ExplainBatch(ctx, items, testConfig(3)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
