// Package model defines the contracts of the vulnerability classifiers and
// a client for the remote model server that hosts them.
package model

import (
	"context"
	"fmt"

	"github.com/rehabmohamed2/CodeGuard-project/internal/explain"
)

// Device selects the execution provider on the model server.
type Device string

const (
	CPU Device = "cpu"
	GPU Device = "gpu"
)

// ParseDevice accepts "cpu" or "gpu".
func ParseDevice(s string) (Device, error) {
	switch Device(s) {
	case CPU, GPU:
		return Device(s), nil
	}
	return "", fmt.Errorf("unknown device %q", s)
}

// Model names as registered on the model server.
const (
	LineModelName      = "line"
	StatementModelName = "statement"
	CWEModelName       = "cwe"
	SeverityModelName  = "severity"
)

// LineOutput is the function-level classifier result. Attentions holds,
// per batch item, the attention slices the model exposes.
type LineOutput struct {
	Probs      [][]float32        `json:"probs"`
	Attentions [][]explain.Matrix `json:"attentions"`
}

// StatementOutput is the statement-level classifier result.
type StatementOutput struct {
	FuncProbs      [][]float32 `json:"func_probs"`
	StatementProbs [][]float32 `json:"statement_probs"`
}

// CWEOutput holds the two heads of the CWE classifier.
type CWEOutput struct {
	IDProbs   [][]float32 `json:"cwe_id_probs"`
	TypeProbs [][]float32 `json:"cwe_type_probs"`
}

type LineModel interface {
	PredictLines(ctx context.Context, dev Device, inputIDs [][]int) (*LineOutput, error)
}

type StatementModel interface {
	PredictStatements(ctx context.Context, dev Device, inputIDs [][][]int, mask [][]bool) (*StatementOutput, error)
}

type CWEModel interface {
	PredictCWE(ctx context.Context, dev Device, inputIDs [][]int) (*CWEOutput, error)
}

type SeverityModel interface {
	PredictSeverity(ctx context.Context, dev Device, inputIDs [][]int) ([]float32, error)
}

// Models is the full set of classifiers the service depends on.
type Models interface {
	LineModel
	StatementModel
	CWEModel
	SeverityModel
}

// Argmax returns the index and value of the largest probability. Ties go
// to the lowest index. An empty slice yields -1.
func Argmax(probs []float32) (int, float32) {
	if len(probs) == 0 {
		return -1, 0
	}
	best := 0
	for i, p := range probs[1:] {
		if p > probs[best] {
			best = i + 1
		}
	}
	return best, probs[best]
}
