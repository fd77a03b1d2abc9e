// Package tokenizer is the analyzer shared by indexing and querying: text is
// split on whitespace and every term is lower-cased. Using one analyzer on
// both sides is what lets a free-text query find what was indexed.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lower-cased, whitespace-delimited Tokens.
func Tokenize(text string) []Token {
	words := strings.FieldsFunc(text, unicode.IsSpace)
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		tokens = append(tokens, Token{
			Term:     Normalize(word),
			Position: pos,
		})
	}
	return tokens
}

// Normalize applies the per-term filter chain to a single word.
func Normalize(word string) string {
	return strings.ToLower(word)
}
