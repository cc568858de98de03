package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rehabmohamed2/CodeGuard-project/internal/snippet"
)

// Config controls splitting behavior.
type Config struct {
	MaxTokens int // Token budget per snippet.
	MinLines  int // Snippets with fewer non-blank lines are dropped.

	// Count measures code against MaxTokens. EstimateTokens is used when nil.
	Count func(code string) int
}

func (c Config) tokens(code string) int {
	if c.Count != nil {
		return c.Count(code)
	}
	return EstimateTokens(code)
}

// DefaultConfig leaves headroom below a 512-token model window for the
// sentinel tokens.
func DefaultConfig() Config {
	return Config{
		MaxTokens: 480,
		MinLines:  1,
	}
}

// GlobalsName labels the snippet that collects code outside any function.
const GlobalsName = "<globals>"

// SplitSource splits every block of a source into function snippets and
// numbers them in document order.
func SplitSource(src *snippet.Source, cfg Config) []snippet.Snippet {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 480
	}
	if cfg.MinLines <= 0 {
		cfg.MinLines = 1
	}

	var out []snippet.Snippet
	for _, b := range src.Blocks {
		for _, s := range Split(b, cfg) {
			s.Index = len(out)
			out = append(out, s)
		}
	}
	return out
}

// Split breaks one block of C-family code into top-level functions. A
// function is its header lines plus a brace-balanced body; code outside
// any function is gathered into a single globals snippet placed first.
// Functions over the token budget are cut into line windows.
func Split(b snippet.Block, cfg Config) []snippet.Snippet {
	lines := strings.Split(strings.ReplaceAll(b.Text, "\r\n", "\n"), "\n")
	base := b.StartLine
	if base <= 0 {
		base = 1
	}

	var (
		st       scanState
		globals  []numberedLine
		funcs    []snippet.Snippet
		inBlock  bool
		start    int // first line of the open block
		assigned int // lines before this index belong to a block or globals
	)
	closeBlock := func(end int) {
		body := lines[start:end]
		if name, ok := functionName(body); ok {
			funcs = append(funcs, window(name, body, base+start, b.Origin, cfg)...)
		} else {
			globals = appendLines(globals, lines, start, end)
		}
		inBlock = false
		assigned = end
	}

	for i, line := range lines {
		opened := st.scan(line)
		if !inBlock && opened {
			hs := headerStart(lines, assigned, i)
			globals = appendLines(globals, lines, assigned, hs)
			start = hs
			inBlock = true
		}
		if inBlock && st.depth == 0 {
			closeBlock(i + 1)
		}
	}
	if inBlock {
		closeBlock(len(lines))
	} else {
		globals = appendLines(globals, lines, assigned, len(lines))
	}

	var out []snippet.Snippet
	if g := globalsSnippet(globals, base, b.Origin); g != nil {
		out = append(out, window(g.Name, strings.Split(g.Code, "\n"), g.StartLine, b.Origin, cfg)...)
	}
	out = append(out, funcs...)

	kept := out[:0]
	for _, s := range out {
		if nonBlankLines(s.Code) >= cfg.MinLines {
			kept = append(kept, s)
		}
	}
	return kept
}

type numberedLine struct {
	index int
	text  string
}

func appendLines(dst []numberedLine, lines []string, from, to int) []numberedLine {
	for i := from; i < to; i++ {
		dst = append(dst, numberedLine{index: i, text: lines[i]})
	}
	return dst
}

// globalsSnippet joins the non-function lines, trimming blank lines at
// either end.
func globalsSnippet(lines []numberedLine, base int, origin string) *snippet.Snippet {
	first, last := -1, -1
	for i, l := range lines {
		if strings.TrimSpace(l.text) != "" {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return nil
	}
	texts := make([]string, 0, last-first+1)
	for _, l := range lines[first : last+1] {
		texts = append(texts, l.text)
	}
	return &snippet.Snippet{
		Name:      GlobalsName,
		Code:      strings.Join(texts, "\n"),
		Origin:    origin,
		StartLine: base + lines[first].index,
	}
}

// headerStart walks back from the line holding the opening brace to the
// first line of the declaration. It stops at blank lines, preprocessor
// directives and lines that end a previous statement.
func headerStart(lines []string, lo, braceLine int) int {
	start := braceLine
	for k := braceLine - 1; k >= lo; k-- {
		t := strings.TrimSpace(lines[k])
		if t == "" || strings.HasPrefix(t, "#") || strings.HasSuffix(t, ";") || strings.HasSuffix(t, "}") {
			break
		}
		start = k
	}
	return start
}

var nameRe = regexp.MustCompile(`([A-Za-z_~][A-Za-z0-9_:~]*)\s*$`)

// functionName reports the name of a block whose header has a parameter
// list. Blocks without one (structs, initializers, namespaces) are not
// functions.
func functionName(block []string) (string, bool) {
	header := stripComments(strings.Join(block, "\n"))
	if i := strings.Index(header, "{"); i >= 0 {
		header = header[:i]
	}
	paren := strings.Index(header, "(")
	if paren < 0 {
		return "", false
	}
	if m := nameRe.FindStringSubmatch(header[:paren]); m != nil {
		return m[1], true
	}
	return "anonymous", true
}

var commentRe = regexp.MustCompile(`(?s)/\*.*?\*/|//[^\n]*`)

func stripComments(code string) string {
	return commentRe.ReplaceAllString(code, " ")
}

// window cuts lines into consecutive snippets within the token budget. A
// single line over budget becomes a snippet of its own.
func window(name string, lines []string, startLine int, origin string, cfg Config) []snippet.Snippet {
	code := strings.Join(lines, "\n")
	if cfg.tokens(code) <= cfg.MaxTokens {
		return []snippet.Snippet{{Name: name, Code: code, Origin: origin, StartLine: startLine}}
	}

	var parts []snippet.Snippet
	from, tokens := 0, 0
	flush := func(to int) {
		if to > from {
			parts = append(parts, snippet.Snippet{
				Code:      strings.Join(lines[from:to], "\n"),
				Origin:    origin,
				StartLine: startLine + from,
			})
		}
		from, tokens = to, 0
	}
	for i, l := range lines {
		n := cfg.tokens(l) + 1
		if tokens+n > cfg.MaxTokens && i > from {
			flush(i)
		}
		tokens += n
	}
	flush(len(lines))

	for i := range parts {
		parts[i].Name = fmt.Sprintf("%s (part %d/%d)", name, i+1, len(parts))
	}
	return parts
}

func nonBlankLines(code string) int {
	n := 0
	for _, l := range strings.Split(code, "\n") {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

// scanState tracks brace depth across lines, ignoring braces inside
// comments and string or character literals.
type scanState struct {
	depth        int
	blockComment bool
}

// scan consumes one line and reports whether a brace opened at depth zero.
func (s *scanState) scan(line string) bool {
	opened := false
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case s.blockComment:
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				s.blockComment = false
				i++
			}
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return opened
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			s.blockComment = true
			i++
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			if s.depth == 0 {
				opened = true
			}
			s.depth++
		case c == '}':
			if s.depth > 0 {
				s.depth--
			}
		}
	}
	return opened
}
