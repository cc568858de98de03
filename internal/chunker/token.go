package chunker

import "unicode"

// EstimateTokens approximates the subword token count of source code: each
// identifier or number run counts one token per four characters, and every
// other non-space character counts one. A single space joins the next word;
// longer whitespace runs such as indentation, and lone tabs, become marker
// tokens of their own. Byte-level vocabularies split code at least this
// finely, so the estimate errs high.
func EstimateTokens(code string) int {
	tokens := 0
	run, ws := 0, 0
	tab := false
	flush := func() {
		if run > 0 {
			tokens += (run + 3) / 4
			run = 0
		}
		switch {
		case ws > 1:
			tokens += (ws + 2) / 4
		case ws == 1 && tab:
			tokens++
		}
		ws, tab = 0, false
	}
	for _, r := range code {
		switch {
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			if ws > 0 {
				flush()
			}
			run++
		case r == '\n':
			flush()
			tokens++
		case unicode.IsSpace(r):
			if run > 0 {
				flush()
			}
			ws++
			tab = tab || r != ' '
		default:
			flush()
			tokens++
		}
	}
	flush()
	return tokens
}
