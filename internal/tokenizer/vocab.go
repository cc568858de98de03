package tokenizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	tokenizers "github.com/amikos-tech/pure-tokenizers"
)

// Markers emitted by byte-level vocabularies for whitespace bytes.
const (
	SpaceMarker   = "Ġ"
	NewlineMarker = "Ċ"
	TabMarker     = "ĉ"
)

// Special tokens every vocabulary must define.
const (
	BOSToken = "<s>"
	EOSToken = "</s>"
	PadToken = "<pad>"
	UnkToken = "<unk>"
)

// Encoder turns text into BPE token ids without special tokens.
type Encoder interface {
	Encode(text string) ([]int, error)
	Close() error
}

// Vocab pairs a BPE encoder with the token table of the same vocabulary.
// Sequences are framed and padded here so every model sees the same
// layout. A Vocab is read-only after setup and safe for concurrent use.
type Vocab struct {
	enc    Encoder
	ids    map[string]int
	tokens map[int]string
	nextID int

	bos, eos, pad, unk int
}

// Load reads a Hugging Face tokenizer.json. Encoding runs through the
// tokenizers library with the file's pre-tokenizer and merges; the token
// table comes from the same file. libraryPath overrides where the native
// tokenizers library is looked up and may be empty.
func Load(path, libraryPath string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	table, err := parseTable(data)
	if err != nil {
		return nil, err
	}

	var opts []tokenizers.TokenizerOption
	if libraryPath != "" {
		opts = append(opts, tokenizers.WithLibraryPath(libraryPath))
	}
	tk, err := tokenizers.FromFile(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	size, err := tk.VocabSize()
	if err == nil && size == 0 {
		err = errors.New("vocabulary size is zero")
	}
	if err != nil {
		return nil, errors.Join(fmt.Errorf("tokenizer vocabulary: %w", err), tk.Close())
	}

	v, err := New(table, &libEncoder{tk: tk})
	if err != nil {
		return nil, errors.Join(err, tk.Close())
	}
	return v, nil
}

type tokenizerFile struct {
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
	Model struct {
		Vocab map[string]int `json:"vocab"`
	} `json:"model"`
}

// parseTable collects the token -> id table of a tokenizer.json.
func parseTable(data []byte) (map[string]int, error) {
	var f tokenizerFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode tokenizer: %w", err)
	}
	if len(f.Model.Vocab) == 0 {
		return nil, errors.New("tokenizer has no model vocab")
	}
	table := make(map[string]int, len(f.Model.Vocab)+len(f.AddedTokens))
	for tok, id := range f.Model.Vocab {
		table[tok] = id
	}
	for _, at := range f.AddedTokens {
		if id, ok := table[at.Content]; ok && id == at.ID {
			continue
		}
		table[at.Content] = at.ID
	}
	return table, nil
}

// libEncoder adapts the tokenizers library.
type libEncoder struct {
	mu sync.Mutex
	tk *tokenizers.Tokenizer
}

func (e *libEncoder) Encode(text string) ([]int, error) {
	e.mu.Lock()
	res, err := e.tk.Encode(text)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("empty tokenizer result")
	}
	ids := make([]int, len(res.IDs))
	for i, id := range res.IDs {
		ids[i] = int(id)
	}
	return ids, nil
}

func (e *libEncoder) Close() error { return e.tk.Close() }

// New builds a Vocab from a token -> id table and the encoder for the same
// vocabulary.
func New(ids map[string]int, enc Encoder) (*Vocab, error) {
	if enc == nil {
		return nil, errors.New("tokenizer: nil encoder")
	}
	v := &Vocab{
		enc:    enc,
		ids:    make(map[string]int, len(ids)),
		tokens: make(map[int]string, len(ids)),
	}
	for tok, id := range ids {
		if id < 0 {
			return nil, fmt.Errorf("token %q has negative id %d", tok, id)
		}
		if prev, dup := v.tokens[id]; dup {
			return nil, fmt.Errorf("id %d assigned to both %q and %q", id, prev, tok)
		}
		v.ids[tok] = id
		v.tokens[id] = tok
		if id >= v.nextID {
			v.nextID = id + 1
		}
	}

	var ok bool
	for _, sp := range []struct {
		tok string
		dst *int
	}{{BOSToken, &v.bos}, {EOSToken, &v.eos}, {PadToken, &v.pad}, {UnkToken, &v.unk}} {
		if *sp.dst, ok = v.ids[sp.tok]; !ok {
			return nil, fmt.Errorf("vocab is missing special token %s", sp.tok)
		}
	}
	return v, nil
}

// Close releases the encoder.
func (v *Vocab) Close() error { return v.enc.Close() }

// AddToken registers an extra special token and returns its id. Existing
// tokens keep their id. The token is only placed by id, never produced by
// Encode. Not safe to call once the Vocab is shared.
func (v *Vocab) AddToken(tok string) int {
	if id, ok := v.ids[tok]; ok {
		return id
	}
	id := v.nextID
	v.nextID++
	v.ids[tok] = id
	v.tokens[id] = tok
	return id
}

func (v *Vocab) Size() int { return len(v.ids) }
func (v *Vocab) BOS() int { return v.bos }
func (v *Vocab) EOS() int { return v.eos }
func (v *Vocab) PadID() int { return v.pad }
func (v *Vocab) UnkID() int { return v.unk }
func (v *Vocab) NewlineMarker() string { return NewlineMarker }
func (v *Vocab) SpaceMarker() string { return SpaceMarker }

// ID looks up a token string.
func (v *Vocab) ID(tok string) (int, bool) {
	id, ok := v.ids[tok]
	return id, ok
}

// Token returns the raw vocabulary entry for id, markers included.
// Unknown ids decode to the unknown token.
func (v *Vocab) Token(id int) string {
	if tok, ok := v.tokens[id]; ok {
		return tok
	}
	return UnkToken
}

// Text returns the token text used for line alignment: leading-space
// markers removed and tab markers folded into the newline marker.
func (v *Vocab) Text(id int) string {
	tok := v.Token(id)
	tok = strings.ReplaceAll(tok, SpaceMarker, "")
	return strings.ReplaceAll(tok, TabMarker, NewlineMarker)
}

// Encode tokenizes text without adding any special tokens. If the encoder
// fails the text encodes as a single unknown token.
func (v *Vocab) Encode(text string) []int {
	ids, err := v.enc.Encode(text)
	if err != nil {
		return []int{v.unk}
	}
	return ids
}

// Count returns the number of tokens Encode produces for text.
func (v *Vocab) Count(text string) int { return len(v.Encode(text)) }

// EncodeFixed tokenizes text without special tokens, truncated or
// right-padded to exactly n ids.
func (v *Vocab) EncodeFixed(text string, n int) []int {
	if n <= 0 {
		return []int{}
	}
	ids := v.Encode(text)
	if len(ids) > n {
		ids = ids[:n]
	}
	return v.padTo(ids, n)
}

// Frame wraps content ids with the given prefix and suffix, truncating the
// content so the result fits n, then right-pads to n. It reports whether
// padding was appended.
func (v *Vocab) Frame(content []int, n int, prefix, suffix []int) ([]int, bool) {
	if n <= 0 {
		return []int{}, false
	}
	room := n - len(prefix) - len(suffix)
	if room < 0 {
		room = 0
	}
	if len(content) > room {
		content = content[:room]
	}
	out := make([]int, 0, n)
	out = append(out, prefix...)
	out = append(out, content...)
	out = append(out, suffix...)
	if len(out) > n {
		out = out[:n]
	}
	padded := len(out) < n
	return v.padTo(out, n), padded
}

// Sequence encodes text as <s> tokens </s>, truncated and padded to n.
func (v *Vocab) Sequence(text string, n int) ([]int, bool) {
	return v.Frame(v.Encode(text), n, []int{v.bos}, []int{v.eos})
}

func (v *Vocab) padTo(ids []int, n int) []int {
	for len(ids) < n {
		ids = append(ids, v.pad)
	}
	return ids
}
