// Package labels maps classifier outputs to CWE labels and severity classes.
package labels

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed default_labels.yaml
var defaultLabels []byte

// ErrLookupMiss is matched by every LookupError.
var ErrLookupMiss = errors.New("label lookup miss")

// LookupError reports an index or score outside the known table.
type LookupError struct {
	Table string
	Key   string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: no label for %s", e.Table, e.Key)
}

func (e *LookupError) Is(target error) bool { return target == ErrLookupMiss }

// Map holds the index -> label tables of the CWE classifier heads.
// It is read-only after loading.
type Map struct {
	CWEIDs   map[int]string
	CWETypes map[int]string
}

type fileFormat struct {
	CWEIDs   map[any]string `yaml:"cwe_ids"`
	CWETypes map[any]string `yaml:"cwe_types"`
}

// Load reads a label map from a YAML file.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return Parse(data)
}

// Default returns the label map compiled into the binary.
func Default() *Map {
	m, err := Parse(defaultLabels)
	if err != nil {
		panic(fmt.Sprintf("embedded labels: %v", err))
	}
	return m
}

// Parse decodes a YAML label map. Keys are class indexes, quoted or not.
func Parse(data []byte) (*Map, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	ids, err := indexTable("cwe_ids", f.CWEIDs)
	if err != nil {
		return nil, err
	}
	types, err := indexTable("cwe_types", f.CWETypes)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 || len(types) == 0 {
		return nil, fmt.Errorf("label map needs both cwe_ids and cwe_types")
	}
	return &Map{CWEIDs: ids, CWETypes: types}, nil
}

func indexTable(name string, raw map[any]string) (map[int]string, error) {
	out := make(map[int]string, len(raw))
	for k, v := range raw {
		var idx int
		switch key := k.(type) {
		case int:
			idx = key
		case string:
			n, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid index %q", name, key)
			}
			idx = n
		default:
			return nil, fmt.Errorf("%s: invalid index %v", name, k)
		}
		if idx < 0 {
			return nil, fmt.Errorf("%s: negative index %d", name, idx)
		}
		out[idx] = v
	}
	return out, nil
}

// CWEID returns the CWE identifier for a class index.
func (m *Map) CWEID(idx int) (string, error) {
	if v, ok := m.CWEIDs[idx]; ok {
		return v, nil
	}
	return "", &LookupError{Table: "cwe_ids", Key: strconv.Itoa(idx)}
}

// CWEType returns the CWE abstraction type for a class index.
func (m *Map) CWEType(idx int) (string, error) {
	if v, ok := m.CWETypes[idx]; ok {
		return v, nil
	}
	return "", &LookupError{Table: "cwe_types", Key: strconv.Itoa(idx)}
}

// Severity classes.
const (
	SeverityNone     = "None"
	SeverityLow      = "Low"
	SeverityMedium   = "Medium"
	SeverityHigh     = "High"
	SeverityCritical = "Critical"
)

// Severity buckets a CVSS-like score. Regression output may stray outside
// [0,10]: negative scores are Low and anything from 9 up is Critical. Only
// NaN has no class.
func Severity(score float64) (string, error) {
	switch {
	case math.IsNaN(score):
		return "", &LookupError{Table: "severity", Key: strconv.FormatFloat(score, 'g', -1, 64)}
	case score == 0:
		return SeverityNone, nil
	case score < 4:
		return SeverityLow, nil
	case score < 7:
		return SeverityMedium, nil
	case score < 9:
		return SeverityHigh, nil
	default:
		return SeverityCritical, nil
	}
}
