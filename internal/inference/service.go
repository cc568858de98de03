// Package inference runs the vulnerability classifiers over code snippets
// and turns their raw outputs into predictions, labels and line scores.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rehabmohamed2/CodeGuard-project/internal/explain"
	"github.com/rehabmohamed2/CodeGuard-project/internal/labels"
	"github.com/rehabmohamed2/CodeGuard-project/internal/model"
	"github.com/rehabmohamed2/CodeGuard-project/internal/statement"
)

// ClsTypeToken separates code from the type head input of the CWE model.
const ClsTypeToken = "<cls_type>"

// ErrNoCode is returned for a request without snippets.
var ErrNoCode = errors.New("no functions to process")

// Tokenizer is the vocabulary surface the service needs.
type Tokenizer interface {
	statement.Tokenizer
	Encode(text string) []int
	Sequence(text string, n int) ([]int, bool)
	Frame(content []int, n int, prefix, suffix []int) ([]int, bool)
	Text(id int) string
	ID(tok string) (int, bool)
	BOS() int
	EOS() int
}

// Config shapes the model inputs.
type Config struct {
	SequenceLength     int
	MaxBatchSize       int
	StatementThreshold float32
	Explain            explain.Config
	Statements         statement.Config
}

// DefaultConfig matches the shipped models.
func DefaultConfig() Config {
	return Config{
		SequenceLength:     512,
		MaxBatchSize:       16,
		StatementThreshold: 0.5,
		Explain:            explain.DefaultConfig(),
		Statements:         statement.DefaultConfig(),
	}
}

// Service ties the tokenizers, the classifiers and the explainer together.
// The statement model has its own vocabulary; the other three models share
// tok. It holds no per-request state and is safe for concurrent use.
type Service struct {
	tok     Tokenizer
	stmtTok statement.Tokenizer
	models model.Models
	labels *labels.Map
	cfg    Config
	log    *slog.Logger

	clsType int
}

// NewService builds a Service. stmtTok encodes statement rows and falls
// back to tok when nil.
func NewService(tok Tokenizer, stmtTok statement.Tokenizer, models model.Models, lm *labels.Map, cfg Config, log *slog.Logger) (*Service, error) {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.SequenceLength < 4 {
		return nil, fmt.Errorf("sequence length must be >= 4, got %d", cfg.SequenceLength)
	}
	cfg.Explain.SequenceLength = cfg.SequenceLength
	if err := cfg.Explain.Validate(); err != nil {
		return nil, fmt.Errorf("explain config: %w", err)
	}
	if err := cfg.Statements.Validate(); err != nil {
		return nil, fmt.Errorf("statement config: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	cls, ok := tok.ID(ClsTypeToken)
	if !ok {
		return nil, fmt.Errorf("tokenizer has no %s token", ClsTypeToken)
	}
	if stmtTok == nil {
		stmtTok = tok
	}
	return &Service{
		tok:     tok,
		stmtTok: stmtTok,
		models:  models,
		labels:  lm,
		cfg:     cfg,
		log:     log,
		clsType: cls,
	}, nil
}

// PredictResult is the function-level prediction with line salience.
type PredictResult struct {
	VulPred     []int       `json:"batch_vul_pred"`
	VulPredProb []float32   `json:"batch_vul_pred_prob"`
	LineScores  [][]float64 `json:"batch_line_scores"`
}

// StatementResult is the statement-level prediction. Statement predictions
// cover only the statements the segmenter kept.
type StatementResult struct {
	FuncPred          []int       `json:"batch_func_pred"`
	FuncPredProb      []float32   `json:"batch_func_pred_prob"`
	StatementPred     [][]int     `json:"batch_statement_pred"`
	StatementPredProb [][]float32 `json:"batch_statement_pred_prob"`
}

// CWEResult is the CWE attribution of each snippet.
type CWEResult struct {
	CWEID       []string  `json:"cwe_id"`
	CWEIDProb   []float32 `json:"cwe_id_prob"`
	CWEType     []string  `json:"cwe_type"`
	CWETypeProb []float32 `json:"cwe_type_prob"`
}

// SeverityResult is the severity score and class of each snippet.
type SeverityResult struct {
	Score []float32 `json:"batch_sev_score"`
	Class []string  `json:"batch_sev_class"`
}

// Predict runs the function-level classifier and explains each prediction
// as per-line attention scores.
func (s *Service) Predict(ctx context.Context, code []string, dev model.Device) (*PredictResult, error) {
	if len(code) == 0 {
		return nil, ErrNoCode
	}
	res := &PredictResult{
		VulPred:     make([]int, 0, len(code)),
		VulPredProb: make([]float32, 0, len(code)),
		LineScores:  make([][]float64, 0, len(code)),
	}
	err := s.eachBatch(code, func(batch []string) error {
		ids := make([][]int, len(batch))
		padded := make([]bool, len(batch))
		for i, c := range batch {
			ids[i], padded[i] = s.tok.Sequence(c, s.cfg.SequenceLength)
		}

		out, err := s.models.PredictLines(ctx, dev, ids)
		if err != nil {
			return fmt.Errorf("line model: %w", err)
		}
		if err := model.ValidateLineOutput(out, len(batch)); err != nil {
			return err
		}

		items := make([]explain.Item, len(batch))
		for i := range batch {
			pred, p := model.Argmax(out.Probs[i])
			res.VulPred = append(res.VulPred, pred)
			res.VulPredProb = append(res.VulPredProb, p)
			items[i] = explain.Item{
				TokenTexts: s.tokenTexts(ids[i]),
				Attention:  out.Attentions[i],
				Padded:     padded[i],
			}
		}
		scores, err := explain.ExplainBatch(ctx, items, s.cfg.Explain)
		if err != nil {
			return fmt.Errorf("explain: %w", err)
		}
		res.LineScores = append(res.LineScores, scores...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PredictStatements segments each snippet into statements and runs the
// statement-level classifier.
func (s *Service) PredictStatements(ctx context.Context, code []string, dev model.Device) (*StatementResult, error) {
	if len(code) == 0 {
		return nil, ErrNoCode
	}
	res := &StatementResult{
		FuncPred:          make([]int, 0, len(code)),
		FuncPredProb:      make([]float32, 0, len(code)),
		StatementPred:     make([][]int, 0, len(code)),
		StatementPredProb: make([][]float32, 0, len(code)),
	}
	err := s.eachBatch(code, func(batch []string) error {
		set := statement.SegmentBatch(batch, s.stmtTok, s.cfg.Statements)
		out, err := s.models.PredictStatements(ctx, dev, set.InputIDs, set.Mask)
		if err != nil {
			return fmt.Errorf("statement model: %w", err)
		}
		if err := model.ValidateStatementOutput(out, set.Mask); err != nil {
			return err
		}
		for i := range batch {
			pred, p := model.Argmax(out.FuncProbs[i])
			res.FuncPred = append(res.FuncPred, pred)
			res.FuncPredProb = append(res.FuncPredProb, p)

			preds := []int{}
			probs := []float32{}
			for row, kept := range set.Mask[i] {
				if !kept {
					continue
				}
				prob := out.StatementProbs[i][row]
				probs = append(probs, prob)
				if prob > s.cfg.StatementThreshold {
					preds = append(preds, 1)
				} else {
					preds = append(preds, 0)
				}
			}
			res.StatementPred = append(res.StatementPred, preds)
			res.StatementPredProb = append(res.StatementPredProb, probs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PredictCWE attributes each snippet to a CWE identifier and abstraction
// type. An index without a label fails the request.
func (s *Service) PredictCWE(ctx context.Context, code []string, dev model.Device) (*CWEResult, error) {
	if len(code) == 0 {
		return nil, ErrNoCode
	}
	res := &CWEResult{}
	err := s.eachBatch(code, func(batch []string) error {
		ids := make([][]int, len(batch))
		for i, c := range batch {
			ids[i] = s.cweSequence(c)
		}
		out, err := s.models.PredictCWE(ctx, dev, ids)
		if err != nil {
			return fmt.Errorf("cwe model: %w", err)
		}
		if err := model.ValidateCWEOutput(out, len(batch)); err != nil {
			return err
		}
		for i := range batch {
			idx, p := model.Argmax(out.IDProbs[i])
			id, err := s.labels.CWEID(idx)
			if err != nil {
				return err
			}
			tidx, tp := model.Argmax(out.TypeProbs[i])
			typ, err := s.labels.CWEType(tidx)
			if err != nil {
				return err
			}
			res.CWEID = append(res.CWEID, id)
			res.CWEIDProb = append(res.CWEIDProb, p)
			res.CWEType = append(res.CWEType, typ)
			res.CWETypeProb = append(res.CWETypeProb, tp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PredictSeverity scores each snippet and buckets the score into a class.
func (s *Service) PredictSeverity(ctx context.Context, code []string, dev model.Device) (*SeverityResult, error) {
	if len(code) == 0 {
		return nil, ErrNoCode
	}
	res := &SeverityResult{}
	err := s.eachBatch(code, func(batch []string) error {
		ids := make([][]int, len(batch))
		for i, c := range batch {
			ids[i], _ = s.tok.Sequence(c, s.cfg.SequenceLength)
		}
		scores, err := s.models.PredictSeverity(ctx, dev, ids)
		if err != nil {
			return fmt.Errorf("severity model: %w", err)
		}
		if err := model.ValidateSeverityOutput(scores, len(batch)); err != nil {
			return err
		}
		for _, score := range scores {
			class, err := labels.Severity(float64(score))
			if err != nil {
				return err
			}
			res.Score = append(res.Score, score)
			res.Class = append(res.Class, class)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// cweSequence frames code as <s> tokens <cls_type> </s>, padded.
func (s *Service) cweSequence(code string) []int {
	ids, _ := s.tok.Frame(s.tok.Encode(code), s.cfg.SequenceLength,
		[]int{s.tok.BOS()}, []int{s.clsType, s.tok.EOS()})
	return ids
}

// CountTokens reports how many content tokens code takes in the shared
// vocabulary, before framing and truncation.
func (s *Service) CountTokens(code string) int {
	return len(s.tok.Encode(code))
}

func (s *Service) tokenTexts(ids []int) []string {
	texts := make([]string, len(ids))
	for i, id := range ids {
		texts[i] = s.tok.Text(id)
	}
	return texts
}

// eachBatch calls fn on consecutive slices of at most MaxBatchSize
// snippets, stopping at the first error.
func (s *Service) eachBatch(code []string, fn func([]string) error) error {
	for start := 0; start < len(code); start += s.cfg.MaxBatchSize {
		end := min(start+s.cfg.MaxBatchSize, len(code))
		if err := fn(code[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Report is the combined analysis of one snippet.
type Report struct {
	Vulnerable        bool      `json:"vulnerable"`
	VulProb           float32   `json:"vul_prob"`
	LineScores        []float64 `json:"line_scores"`
	StatementPred     []int     `json:"statement_pred"`
	StatementPredProb []float32 `json:"statement_pred_prob"`
	CWEID             string    `json:"cwe_id"`
	CWEIDProb         float32   `json:"cwe_id_prob"`
	CWEType           string    `json:"cwe_type"`
	CWETypeProb       float32   `json:"cwe_type_prob"`
	SeverityScore     float32   `json:"sev_score"`
	SeverityClass     string    `json:"sev_class"`
}

// Analyze runs all four classifiers concurrently and merges their results
// per snippet.
func (s *Service) Analyze(ctx context.Context, code []string, dev model.Device) ([]Report, error) {
	if len(code) == 0 {
		return nil, ErrNoCode
	}

	var (
		pred *PredictResult
		stmt *StatementResult
		cwe  *CWEResult
		sev  *SeverityResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		pred, err = s.Predict(gctx, code, dev)
		return err
	})
	g.Go(func() (err error) {
		stmt, err = s.PredictStatements(gctx, code, dev)
		return err
	})
	g.Go(func() (err error) {
		cwe, err = s.PredictCWE(gctx, code, dev)
		return err
	})
	g.Go(func() (err error) {
		sev, err = s.PredictSeverity(gctx, code, dev)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reports := make([]Report, len(code))
	for i := range code {
		reports[i] = Report{
			Vulnerable:        pred.VulPred[i] == 1,
			VulProb:           pred.VulPredProb[i],
			LineScores:        pred.LineScores[i],
			StatementPred:     stmt.StatementPred[i],
			StatementPredProb: stmt.StatementPredProb[i],
			CWEID:             cwe.CWEID[i],
			CWEIDProb:         cwe.CWEIDProb[i],
			CWEType:           cwe.CWEType[i],
			CWETypeProb:       cwe.CWETypeProb[i],
			SeverityScore:     sev.Score[i],
			SeverityClass:     sev.Class[i],
		}
	}
	s.log.Debug("analyzed snippets", "count", len(code), "device", dev)
	return reports, nil
}
