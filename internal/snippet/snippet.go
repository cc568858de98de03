package snippet

// Source is the code found in one uploaded file.
type Source struct {
	Filename string  // Uploaded file name
	Blocks   []Block // Code regions in document order
}

// Block is a contiguous region of code inside a source file, such as a
// fenced block in Markdown or a page of a PDF listing.
type Block struct {
	Text      string // Raw code
	Origin    string // Where the block came from, e.g. "page 2" (empty for plain files)
	StartLine int    // 1-based line of the block within its origin (0 if N/A)
}

// Snippet is one function-sized unit of code, ready for inference.
type Snippet struct {
	Name      string `json:"name"`       // Function name, or a synthetic label for non-function code
	Code      string `json:"code"`       // Snippet text
	Origin    string `json:"origin"`     // Origin of the enclosing block
	StartLine int    `json:"start_line"` // 1-based line of the first snippet line within the origin
	Index     int    `json:"index"`      // Sequence number within the source
}
