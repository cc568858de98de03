package explain

import (
	"slices"
	"strings"
)

// LineState is the running state of the line fold.
type LineState struct {
	Scores []float64 // Emitted line scores, in order.
	Lines  []string  // Text of each emitted line, aligned with Scores.

	acc  float64
	text string
}

// Pending reports the salience accumulated for the line in progress.
func (s LineState) Pending() float64 { return s.acc }

// Step folds one token into the state. A token whose text contains marker
// is a separator. On a separator or the final token, a non-zero
// accumulator absorbs the token's salience and is emitted as a line score.
// Otherwise non-separator tokens accumulate. Separators reached with an
// empty accumulator emit nothing, so blank lines never produce a score.
// s is never modified, so states branched from one parent stay independent.
func Step(s LineState, text string, salience float64, last bool, marker string) LineState {
	sep := marker != "" && strings.Contains(text, marker)

	if (sep || last) && s.acc != 0 {
		line := s.text
		if !sep {
			line += text
		}
		return LineState{
			Scores: append(slices.Clip(s.Scores), s.acc+salience),
			Lines:  append(slices.Clip(s.Lines), line),
		}
	}
	if !sep {
		s.acc += salience
		s.text += text
	}
	return s
}

// Reassemble folds every token of a sequence and returns the final state.
// texts and salience must have the same length.
func Reassemble(texts []string, salience []float64, marker string) (LineState, error) {
	if len(texts) != len(salience) {
		return LineState{}, &ShapeError{Field: "token texts", Got: len(texts), Want: len(salience)}
	}
	s := LineState{Scores: []float64{}, Lines: []string{}}
	for i, text := range texts {
		s = Step(s, text, salience[i], i == len(texts)-1, marker)
	}
	return s, nil
}

// LineScores returns the per-line salience sums for a sequence. An empty
// sequence yields an empty, non-nil slice.
func LineScores(texts []string, salience []float64, marker string) ([]float64, error) {
	s, err := Reassemble(texts, salience, marker)
	if err != nil {
		return nil, err
	}
	return s.Scores, nil
}
