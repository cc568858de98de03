package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrBadOutput reports a model response that disagrees with its request.
var ErrBadOutput = errors.New("malformed model output")

func badOutput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadOutput, fmt.Sprintf(format, args...))
}

func checkProbRows(field string, rows [][]float32, batch int) error {
	if len(rows) != batch {
		return badOutput("%s has %d rows for a batch of %d", field, len(rows), batch)
	}
	for i, row := range rows {
		if len(row) == 0 {
			return badOutput("%s[%d] is empty", field, i)
		}
		for _, p := range row {
			if math.IsNaN(float64(p)) || math.IsInf(float64(p), 0) {
				return badOutput("%s[%d] has a non-finite value", field, i)
			}
		}
	}
	return nil
}

// ValidateLineOutput checks batch dimensions. Per-slice shapes are left
// to the explainer, which reports them against the sequence length.
func ValidateLineOutput(out *LineOutput, batch int) error {
	if out == nil {
		return badOutput("empty line output")
	}
	if err := checkProbRows("probs", out.Probs, batch); err != nil {
		return err
	}
	if len(out.Attentions) != batch {
		return badOutput("attentions has %d items for a batch of %d", len(out.Attentions), batch)
	}
	return nil
}

// ValidateStatementOutput checks that every snippet has one probability
// per statement row.
func ValidateStatementOutput(out *StatementOutput, mask [][]bool) error {
	if out == nil {
		return badOutput("empty statement output")
	}
	if err := checkProbRows("func_probs", out.FuncProbs, len(mask)); err != nil {
		return err
	}
	if len(out.StatementProbs) != len(mask) {
		return badOutput("statement_probs has %d rows for a batch of %d", len(out.StatementProbs), len(mask))
	}
	for i, row := range out.StatementProbs {
		if len(row) != len(mask[i]) {
			return badOutput("statement_probs[%d] has %d values for %d statements", i, len(row), len(mask[i]))
		}
	}
	return nil
}

func ValidateCWEOutput(out *CWEOutput, batch int) error {
	if out == nil {
		return badOutput("empty cwe output")
	}
	if err := checkProbRows("cwe_id_probs", out.IDProbs, batch); err != nil {
		return err
	}
	return checkProbRows("cwe_type_probs", out.TypeProbs, batch)
}

func ValidateSeverityOutput(scores []float32, batch int) error {
	if len(scores) != batch {
		return badOutput("%d severity scores for a batch of %d", len(scores), batch)
	}
	return nil
}
