package chunker

import (
	"strings"
	"testing"

	"github.com/rehabmohamed2/CodeGuard-project/internal/snippet"
)

const sampleC = `#include <stdio.h>

static int counter = 0;

struct point {
	int x, y;
};

/* adds two numbers */
int add(int a, int b)
{
	return a + b;
}

void log_msg(const char *msg) {
	printf("{%s}\n", msg); // not a brace: }
}
`

func TestSplit_FunctionsAndGlobals(t *testing.T) {
	got := Split(snippet.Block{Text: sampleC}, DefaultConfig())
	if len(got) != 3 {
		for _, s := range got {
			t.Logf("%s @%d:\n%s", s.Name, s.StartLine, s.Code)
		}
		t.Fatalf("expected 3 snippets, got %d", len(got))
	}

	g := got[0]
	if g.Name != GlobalsName || g.StartLine != 1 {
		t.Errorf("globals = %q @%d", g.Name, g.StartLine)
	}
	for _, want := range []string{"#include <stdio.h>", "static int counter = 0;", "struct point {", "};"} {
		if !strings.Contains(g.Code, want) {
			t.Errorf("globals missing %q:\n%s", want, g.Code)
		}
	}

	add := got[1]
	if add.Name != "add" || add.StartLine != 9 {
		t.Errorf("add = %q @%d", add.Name, add.StartLine)
	}
	if !strings.HasPrefix(add.Code, "/* adds two numbers */\nint add(int a, int b)\n{") {
		t.Errorf("add code = %q", add.Code)
	}

	logMsg := got[2]
	if logMsg.Name != "log_msg" || logMsg.StartLine != 15 {
		t.Errorf("log_msg = %q @%d", logMsg.Name, logMsg.StartLine)
	}
	if !strings.HasSuffix(logMsg.Code, "}") || strings.Count(logMsg.Code, "\n") != 2 {
		t.Errorf("log_msg code = %q", logMsg.Code)
	}
}

func TestSplit_BlockStartLineOffset(t *testing.T) {
	b := snippet.Block{Text: "int f(void) { return 0; }", Origin: "code block 2", StartLine: 40}
	got := Split(b, DefaultConfig())
	if len(got) != 1 {
		t.Fatalf("expected 1 snippet, got %d", len(got))
	}
	if got[0].Name != "f" || got[0].StartLine != 40 || got[0].Origin != "code block 2" {
		t.Errorf("snippet = %+v", got[0])
	}
}

func TestSplit_BareStatements(t *testing.T) {
	got := Split(snippet.Block{Text: "x = y + 1;\nfree(p);\n"}, DefaultConfig())
	if len(got) != 1 || got[0].Name != GlobalsName {
		t.Fatalf("expected one globals snippet, got %+v", got)
	}
	if got[0].Code != "x = y + 1;\nfree(p);" {
		t.Errorf("code = %q", got[0].Code)
	}
}

func TestSplit_UnterminatedFunction(t *testing.T) {
	got := Split(snippet.Block{Text: "int broken(char *s) {\n\tif (s) {\n\t\treturn 1;\n"}, DefaultConfig())
	if len(got) != 1 || got[0].Name != "broken" {
		t.Fatalf("expected the open function as one snippet, got %+v", got)
	}
}

func TestSplit_CommentsAndStringsIgnored(t *testing.T) {
	code := "int a(void) {\n\t/* { */\n\tchar c = '{';\n\treturn 0;\n}\nint b(void) { return 1; }\n"
	got := Split(snippet.Block{Text: code}, DefaultConfig())
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Fatalf("unexpected split: %+v", got)
	}
}

func TestSplit_MultiLineBlockComment(t *testing.T) {
	code := "/*\n * int fake(void) {\n */\nint real_fn(void) {\n\treturn 0;\n}\n"
	got := Split(snippet.Block{Text: code}, DefaultConfig())
	if len(got) != 1 || got[0].Name != "real_fn" {
		t.Fatalf("unexpected split: %+v", got)
	}
}

func TestSplit_CppMethodName(t *testing.T) {
	got := Split(snippet.Block{Text: "void Parser::reset() const {\n\tpos_ = 0;\n}"}, DefaultConfig())
	if len(got) != 1 || got[0].Name != "Parser::reset" {
		t.Fatalf("unexpected split: %+v", got)
	}
}

func TestSplit_OversizeFunctionWindows(t *testing.T) {
	var b strings.Builder
	b.WriteString("void big(void) {\n")
	for i := 0; i < 200; i++ {
		b.WriteString("\tcounter = counter + value;\n")
	}
	b.WriteString("}")

	cfg := Config{MaxTokens: 100, MinLines: 1}
	got := Split(snippet.Block{Text: b.String()}, cfg)
	if len(got) < 2 {
		t.Fatalf("expected several windows, got %d", len(got))
	}
	total := 0
	for i, s := range got {
		if EstimateTokens(s.Code) > cfg.MaxTokens {
			t.Errorf("window %d has %d tokens", i, EstimateTokens(s.Code))
		}
		if !strings.HasPrefix(s.Name, "big (part ") {
			t.Errorf("window %d name = %q", i, s.Name)
		}
		total += strings.Count(s.Code, "\n") + 1
	}
	if total != 202 {
		t.Errorf("windows cover %d lines, want 202", total)
	}
	if got[1].StartLine <= got[0].StartLine {
		t.Errorf("window start lines not increasing: %d, %d", got[0].StartLine, got[1].StartLine)
	}
}

func TestSplit_IndentedWindowsFitBudget(t *testing.T) {
	var b strings.Builder
	b.WriteString("void deep(void) {\n")
	for i := 0; i < 100; i++ {
		b.WriteString("                                x++;\n")
	}
	b.WriteString("}")

	cfg := Config{MaxTokens: 60, MinLines: 1}
	got := Split(snippet.Block{Text: b.String()}, cfg)
	if len(got) < 2 {
		t.Fatalf("expected several windows, got %d", len(got))
	}
	for i, s := range got {
		if n := EstimateTokens(s.Code); n > cfg.MaxTokens {
			t.Errorf("window %d has %d tokens", i, n)
		}
	}
}

func TestSplit_CustomCounter(t *testing.T) {
	code := "int f(void) {\n\treturn 1;\n}"
	words := func(s string) int { return len(strings.Fields(s)) }

	if got := Split(snippet.Block{Text: code}, Config{MaxTokens: 20, Count: words}); len(got) != 1 {
		t.Fatalf("expected one snippet, got %d", len(got))
	}
	got := Split(snippet.Block{Text: code}, Config{MaxTokens: 3, MinLines: 1, Count: words})
	if len(got) < 2 {
		t.Errorf("counter not used: got %d snippets", len(got))
	}
}

func TestSplit_MinLines(t *testing.T) {
	code := "int one(void) { return 1; }\nint two(void) {\n\treturn 2;\n}\n"
	got := Split(snippet.Block{Text: code}, Config{MaxTokens: 480, MinLines: 2})
	if len(got) != 1 || got[0].Name != "two" {
		t.Fatalf("unexpected split: %+v", got)
	}
}

func TestSplitSource_IndexesAcrossBlocks(t *testing.T) {
	src := &snippet.Source{
		Filename: "notes.md",
		Blocks: []snippet.Block{
			{Text: "int a(void) { return 0; }", Origin: "code block 1"},
			{Text: "int b(void) { return 1; }\nint c(void) { return 2; }", Origin: "code block 2"},
		},
	}
	got := SplitSource(src, Config{})
	if len(got) != 3 {
		t.Fatalf("expected 3 snippets, got %d", len(got))
	}
	for i, s := range got {
		if s.Index != i {
			t.Errorf("snippet %d has index %d", i, s.Index)
		}
	}
	if got[2].Origin != "code block 2" || got[2].StartLine != 2 {
		t.Errorf("last snippet = %+v", got[2])
	}
}

func TestSplit_Empty(t *testing.T) {
	if got := Split(snippet.Block{Text: "\n\n   \n"}, DefaultConfig()); len(got) != 0 {
		t.Errorf("expected no snippets, got %+v", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"x", 1},
		{"counter", 2},
		{"a + b;", 4},
		{"f(x)\n", 5},
		{"        x", 3},
		{"\tx", 2},
		{"a  b", 3},
		{"\n\n\t\t\t\treturn 0;", 7},
	}
	for _, tc := range tests {
		if got := EstimateTokens(tc.in); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
