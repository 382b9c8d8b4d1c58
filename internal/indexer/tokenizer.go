package indexer

import (
	"strings"
	"sync"
	"unicode"
)

// Tokenizer converts text to token ids and back. Decode(Encode(s)) must return s.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// SimpleTokenizer is a reversible vocabulary tokenizer. Text is cut into runs of
// letters and digits, runs of whitespace, and single other runes; every distinct
// piece gets the next free id. It is safe for concurrent use.
type SimpleTokenizer struct {
	mu     sync.Mutex
	ids    map[string]int
	pieces []string
}

// NewSimpleTokenizer returns an empty tokenizer.
func NewSimpleTokenizer() *SimpleTokenizer {
	return &SimpleTokenizer{ids: make(map[string]int)}
}

// Encode implements Tokenizer.
func (t *SimpleTokenizer) Encode(text string) []int {
	pieces := segment(text)
	if len(pieces) == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	tokens := make([]int, len(pieces))
	for i, p := range pieces {
		id, ok := t.ids[p]
		if !ok {
			id = len(t.pieces)
			t.ids[p] = id
			t.pieces = append(t.pieces, p)
		}
		tokens[i] = id
	}
	return tokens
}

// Decode implements Tokenizer. Unknown ids are skipped.
func (t *SimpleTokenizer) Decode(tokens []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	for _, id := range tokens {
		if id >= 0 && id < len(t.pieces) {
			b.WriteString(t.pieces[id])
		}
	}
	return b.String()
}

type runeClass int

const (
	classWord runeClass = iota
	classSpace
	classOther
)

func classify(r rune) runeClass {
	switch {
	case unicode.IsLetter(r) || unicode.IsDigit(r):
		return classWord
	case unicode.IsSpace(r):
		return classSpace
	default:
		return classOther
	}
}

func segment(text string) []string {
	var pieces []string
	start := -1
	var prev runeClass
	for i, r := range text {
		c := classify(r)
		if start >= 0 && (c != prev || c == classOther) {
			pieces = append(pieces, text[start:i])
			start = -1
		}
		if start < 0 {
			start = i
			prev = c
		}
	}
	if start >= 0 {
		pieces = append(pieces, text[start:])
	}
	return pieces
}
