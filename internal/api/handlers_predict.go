package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rehabmohamed2/CodeGuard-project/internal/explain"
	"github.com/rehabmohamed2/CodeGuard-project/internal/inference"
	"github.com/rehabmohamed2/CodeGuard-project/internal/labels"
	"github.com/rehabmohamed2/CodeGuard-project/internal/model"
)

const (
	msgNoFunctions = "No functions to process"
	msgNoCode      = "No code to process"
)

type predictFunc func(ctx context.Context, code []string, dev model.Device) (any, error)

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	s.runPredict(w, r, msgNoFunctions, func(ctx context.Context, code []string, dev model.Device) (any, error) {
		return s.predictor.Predict(ctx, code, dev)
	})
}

func (s *Server) handleStatements(w http.ResponseWriter, r *http.Request) {
	s.runPredict(w, r, msgNoFunctions, func(ctx context.Context, code []string, dev model.Device) (any, error) {
		return s.predictor.PredictStatements(ctx, code, dev)
	})
}

func (s *Server) handleCWE(w http.ResponseWriter, r *http.Request) {
	s.runPredict(w, r, msgNoCode, func(ctx context.Context, code []string, dev model.Device) (any, error) {
		return s.predictor.PredictCWE(ctx, code, dev)
	})
}

func (s *Server) handleSeverity(w http.ResponseWriter, r *http.Request) {
	s.runPredict(w, r, msgNoCode, func(ctx context.Context, code []string, dev model.Device) (any, error) {
		return s.predictor.PredictSeverity(ctx, code, dev)
	})
}

// runPredict decodes the snippet list, calls fn and writes its result.
func (s *Server) runPredict(w http.ResponseWriter, r *http.Request, emptyMsg string, fn predictFunc) {
	dev, err := model.ParseDevice(chi.URLParam(r, "device"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	code, err := decodeCode(body)
	if err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(code) == 0 {
		jsonError(w, emptyMsg, http.StatusBadRequest)
		return
	}

	res, err := fn(r.Context(), code, dev)
	if err != nil {
		status := predictStatus(err)
		msg := err.Error()
		if errors.Is(err, inference.ErrNoCode) {
			msg = emptyMsg
		}
		s.log.Error("prediction failed", "path", r.URL.Path, "snippets", len(code), "status", status, "error", err)
		jsonError(w, msg, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// decodeCode accepts a JSON array of snippets, or an object whose "code"
// field is a snippet or an array of them. An empty body is an empty list.
func decodeCode(body []byte) ([]string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var list []string
	if body[0] == '[' || bytes.Equal(body, []byte("null")) {
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("expected an array of strings: %w", err)
		}
		return list, nil
	}

	var obj struct {
		Code json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	if len(obj.Code) == 0 {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(obj.Code, &one); err == nil {
		if one == "" {
			return nil, nil
		}
		return []string{one}, nil
	}
	if err := json.Unmarshal(obj.Code, &list); err != nil {
		return nil, errors.New(`"code" must be a string or an array of strings`)
	}
	return list, nil
}

// predictStatus maps inference failures to HTTP statuses.
func predictStatus(err error) int {
	switch {
	case errors.Is(err, inference.ErrNoCode):
		return http.StatusBadRequest
	case errors.Is(err, explain.ErrShapeMismatch),
		errors.Is(err, explain.ErrNonFinite),
		errors.Is(err, labels.ErrLookupMiss):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
