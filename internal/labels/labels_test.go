package labels

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	m := Default()
	id, err := m.CWEID(20)
	if err != nil || id != "CWE-787" {
		t.Errorf("CWEID(20) = %q, %v", id, err)
	}
	typ, err := m.CWEType(0)
	if err != nil || typ != "Base" {
		t.Errorf("CWEType(0) = %q, %v", typ, err)
	}
}

func TestLookupMiss(t *testing.T) {
	m := Default()
	if _, err := m.CWEID(9999); !errors.Is(err, ErrLookupMiss) {
		t.Errorf("CWEID(9999) err = %v", err)
	}
	_, err := m.CWEType(-1)
	var le *LookupError
	if !errors.As(err, &le) || le.Table != "cwe_types" || le.Key != "-1" {
		t.Errorf("CWEType(-1) err = %#v", err)
	}
}

func TestParse_QuotedAndBareKeys(t *testing.T) {
	m, err := Parse([]byte("cwe_ids:\n  \"0\": CWE-20\n  1: CWE-125\ncwe_types:\n  0: Class\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.CWEIDs[0] != "CWE-20" || m.CWEIDs[1] != "CWE-125" || m.CWETypes[0] != "Class" {
		t.Errorf("unexpected map: %+v", m)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad key":       "cwe_ids:\n  abc: CWE-20\ncwe_types:\n  0: Base\n",
		"negative key":  "cwe_ids:\n  -1: CWE-20\ncwe_types:\n  0: Base\n",
		"missing types": "cwe_ids:\n  0: CWE-20\n",
		"not yaml":      "cwe_ids: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	if err := os.WriteFile(path, []byte("cwe_ids:\n  0: CWE-416\ncwe_types:\n  0: Variant\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if id, _ := m.CWEID(0); id != "CWE-416" {
		t.Errorf("CWEID(0) = %q", id)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, SeverityNone},
		{0.1, SeverityLow},
		{3.99, SeverityLow},
		{4, SeverityMedium},
		{6.9, SeverityMedium},
		{7, SeverityHigh},
		{8.99, SeverityHigh},
		{9, SeverityCritical},
		{10, SeverityCritical},
	}
	for _, tc := range tests {
		got, err := Severity(tc.score)
		if err != nil {
			t.Errorf("Severity(%v): %v", tc.score, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Severity(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestSeverity_OutOfRange(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{-0.05, SeverityLow},
		{-3, SeverityLow},
		{math.Inf(-1), SeverityLow},
		{10.2, SeverityCritical},
		{math.Inf(1), SeverityCritical},
	}
	for _, tc := range tests {
		got, err := Severity(tc.score)
		if err != nil {
			t.Errorf("Severity(%v): %v", tc.score, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Severity(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestSeverity_NaN(t *testing.T) {
	if _, err := Severity(math.NaN()); !errors.Is(err, ErrLookupMiss) {
		t.Errorf("err = %v, want ErrLookupMiss", err)
	}
}
