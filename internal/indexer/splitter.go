package indexer

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 400
	DefaultChunkOverlap = 40
)

var (
	ErrInvalidChunkSize    = errors.New("chunk size must be >= 1")
	ErrInvalidChunkOverlap = errors.New("chunk overlap must be >= 0 and <= chunk size")
)

// SplitterConfig controls how text is cut into chunks. A nil Separators list
// selects the table for DocType; a nil Tokenizer gets a fresh SimpleTokenizer.
type SplitterConfig struct {
	Separators     []string
	KeepSeparators bool
	ChunkSize      int
	ChunkOverlap   int
	Tokenizer      Tokenizer
	DocType        string
}

// DefaultSplitterConfig returns a config with the default token budget.
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// TextChunk is a piece of a document. StartPos and EndPos are inclusive byte
// offsets into the split text and cover the trailing separator, if any.
type TextChunk struct {
	Text         string
	Tokens       []int
	StartPos     int
	EndPos       int
	StartOverlap []int
	EndOverlap   []int
}

// TextSplitter splits text recursively by a list of separators until every chunk
// fits in ChunkSize tokens, then merges small neighbours back together.
type TextSplitter struct {
	cfg SplitterConfig
}

// NewTextSplitter validates cfg and returns a splitter.
func NewTextSplitter(cfg SplitterConfig) (*TextSplitter, error) {
	if cfg.ChunkSize < 1 {
		return nil, ErrInvalidChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap > cfg.ChunkSize {
		return nil, ErrInvalidChunkOverlap
	}
	if cfg.Separators == nil {
		cfg.Separators = Separators(cfg.DocType)
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = NewSimpleTokenizer()
	}
	return &TextSplitter{cfg: cfg}, nil
}

// Tokenizer returns the tokenizer used for chunk budgets.
func (s *TextSplitter) Tokenizer() Tokenizer { return s.cfg.Tokenizer }

// Split cuts text into chunks and fills in the overlap tokens shared with the
// neighbouring chunks.
func (s *TextSplitter) Split(text string) []*TextChunk {
	chunks := s.recursiveSplit(text, s.cfg.Separators, 0)
	if n := s.cfg.ChunkOverlap; n > 0 {
		for i, c := range chunks {
			if i > 0 {
				prev := chunks[i-1].Tokens
				c.StartOverlap = append([]int(nil), prev[max(0, len(prev)-n):]...)
			}
			if i < len(chunks)-1 {
				next := chunks[i+1].Tokens
				c.EndOverlap = append([]int(nil), next[:min(n, len(next))]...)
			}
		}
	}
	return chunks
}

// WithOverlap returns the chunk text surrounded by its decoded overlap tokens.
func (s *TextSplitter) WithOverlap(c *TextChunk) string {
	if len(c.StartOverlap) == 0 && len(c.EndOverlap) == 0 {
		return c.Text
	}
	return s.cfg.Tokenizer.Decode(c.StartOverlap) + c.Text + s.cfg.Tokenizer.Decode(c.EndOverlap)
}

func (s *TextSplitter) recursiveSplit(text string, separators []string, startPos int) []*TextChunk {
	if text == "" {
		return nil
	}

	var parts []string
	var sep string
	var next []string
	if len(separators) > 0 {
		sep = separators[0]
		next = separators[1:]
		parts = strings.Split(text, sep)
	} else {
		if utf8.RuneCountInString(text) < 2 {
			return []*TextChunk{s.newChunk(text, startPos, startPos+len(text)-1)}
		}
		half := len(text) / 2
		for half > 0 && !utf8.RuneStart(text[half]) {
			half--
		}
		if half == 0 {
			_, half = utf8.DecodeRuneInString(text)
		}
		parts = []string{text[:half], text[half:]}
	}

	var chunks []*TextChunk
	for i, part := range parts {
		last := i == len(parts)-1
		endPos := startPos + len(part) - 1
		if !last {
			endPos += len(sep)
		}
		if s.cfg.KeepSeparators && !last {
			part += sep
		}

		if hasAlphanumeric(part) {
			if len(part)/6 > s.cfg.ChunkSize {
				chunks = append(chunks, s.recursiveSplit(part, next, startPos)...)
			} else {
				tokens := s.cfg.Tokenizer.Encode(part)
				if len(tokens) > s.cfg.ChunkSize {
					chunks = append(chunks, s.recursiveSplit(part, next, startPos)...)
				} else {
					chunks = append(chunks, &TextChunk{Text: part, Tokens: tokens, StartPos: startPos, EndPos: endPos})
				}
			}
		}
		startPos = endPos + 1
	}
	return s.combineChunks(chunks)
}

func (s *TextSplitter) newChunk(text string, startPos, endPos int) *TextChunk {
	return &TextChunk{Text: text, Tokens: s.cfg.Tokenizer.Encode(text), StartPos: startPos, EndPos: endPos}
}

func (s *TextSplitter) combineChunks(chunks []*TextChunk) []*TextChunk {
	if len(chunks) < 2 {
		return chunks
	}
	joiner := " "
	if s.cfg.KeepSeparators {
		joiner = ""
	}

	var combined []*TextChunk
	var current *TextChunk
	for _, c := range chunks {
		if current == nil {
			current = c
			continue
		}
		if len(current.Tokens)+len(c.Tokens) > s.cfg.ChunkSize {
			combined = append(combined, current)
			current = c
			continue
		}
		current.Text += joiner + c.Text
		current.Tokens = append(current.Tokens, c.Tokens...)
		current.EndPos = c.EndPos
	}
	if current != nil {
		combined = append(combined, current)
	}
	return combined
}

func hasAlphanumeric(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Separators returns the split separators for a document type such as "md",
// "go" or "python". Unknown types get paragraph, line, word and rune breaks.
func Separators(docType string) []string {
	switch strings.ToLower(docType) {
	case "cpp":
		return []string{"\nclass ", "\nvoid ", "\nint ", "\nfloat ", "\ndouble ", "\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ", "\n\n", "\n", " "}
	case "go":
		return []string{"\nfunc ", "\nvar ", "\nconst ", "\ntype ", "\nif ", "\nfor ", "\nswitch ", "\ncase ", "\n\n", "\n", " "}
	case "java", "c#", "csharp", "cs", "ts", "tsx", "typescript":
		return []string{"\nclass ", "\npublic ", "\nprotected ", "\nprivate ", "\nstatic ", "\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ", "\n\n", "\n", " "}
	case "js", "jsx", "javascript":
		return []string{"\nclass ", "\nfunction ", "\nconst ", "\nlet ", "\nvar ", "\nif ", "\nfor ", "\nwhile ", "\nswitch ", "\ncase ", "\ndefault ", "\n\n", "\n", " "}
	case "php":
		return []string{"\nfunction ", "\nclass ", "\nif ", "\nforeach ", "\nwhile ", "\ndo ", "\nswitch ", "\ncase ", "\n\n", "\n", " "}
	case "proto":
		return []string{"\nmessage ", "\nservice ", "\nenum ", "\noption ", "\nimport ", "\nsyntax ", "\n\n", "\n", " "}
	case "python", "py":
		return []string{"\nclass ", "\ndef ", "\n\tdef ", "\n\n", "\n", " "}
	case "rst":
		return []string{"\n===\n", "\n---\n", "\n***\n", "\n.. ", "\n\n", "\n", " "}
	case "ruby":
		return []string{"\ndef ", "\nclass ", "\nif ", "\nunless ", "\nwhile ", "\nfor ", "\ndo ", "\nbegin ", "\nrescue ", "\n\n", "\n", " "}
	case "rust":
		return []string{"\nfn ", "\nconst ", "\nlet ", "\nif ", "\nwhile ", "\nfor ", "\nloop ", "\nmatch ", "\n\n", "\n", " "}
	case "scala":
		return []string{"\nclass ", "\nobject ", "\ndef ", "\nval ", "\nvar ", "\nif ", "\nfor ", "\nwhile ", "\nmatch ", "\ncase ", "\n\n", "\n", " "}
	case "swift":
		return []string{"\nfunc ", "\nclass ", "\nstruct ", "\nenum ", "\nif ", "\nfor ", "\nwhile ", "\ndo ", "\nswitch ", "\ncase ", "\n\n", "\n", " "}
	case "md", "markdown":
		return []string{"\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ", "```\n\n", "\n\n***\n\n", "\n\n---\n\n", "\n\n___\n\n", "<table>", "\n\n", "\n", " "}
	case "latex":
		return []string{"\n\\chapter{", "\n\\section{", "\n\\subsection{", "\n\\subsubsection{", "\n\\begin{enumerate}", "\n\\begin{itemize}", "\n\\begin{description}", "\n\\begin{list}", "\n\\begin{quote}", "\n\\begin{quotation}", "\n\\begin{verse}", "\n\\begin{verbatim}", "\n\\begin{align}", "$$", "$", "\n\n", "\n", " "}
	case "html":
		return []string{"<body>", "<div>", "<p>", "<br>", "<li>", "<h1>", "<h2>", "<h3>", "<h4>", "<h5>", "<h6>", "<span>", "<table>", "<tr>", "<td>", "<th>", "<ul>", "<ol>", "<header>", "<footer>", "<nav>", "<head>", "<style>", "<script>", "<meta>", "<title>", " "}
	case "sol":
		return []string{"\npragma ", "\nusing ", "\ncontract ", "\ninterface ", "\nlibrary ", "\nconstructor ", "\ntype ", "\nfunction ", "\nevent ", "\nmodifier ", "\nerror ", "\nstruct ", "\nenum ", "\nif ", "\nfor ", "\nwhile ", "\ndo while ", "\nassembly ", "\n\n", "\n", " "}
	default:
		return []string{"\n\n", "\n", " ", ""}
	}
}
