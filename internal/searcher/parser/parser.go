// Package parser turns free-text input into a boolean content query. The
// syntax is a subset of the classic Lucene query language: terms default to
// OR, "+" and "-" mark required and prohibited terms, AND/OR/NOT are
// operators, quoted text is a phrase and a trailing "*" makes a prefix term.
package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

// Clause is one term, prefix or phrase of a query. Terms are already
// normalised by the index analyzer; a phrase has more than one term.
type Clause struct {
	Occur  Occur
	Terms  []string
	Prefix bool
}

func (c Clause) IsPhrase() bool {
	return len(c.Terms) > 1
}

func (c Clause) String() string {
	var sb strings.Builder
	sb.WriteString(c.Occur.String())
	if c.IsPhrase() {
		sb.WriteByte('"')
		sb.WriteString(strings.Join(c.Terms, " "))
		sb.WriteByte('"')
		return sb.String()
	}
	sb.WriteString(c.Terms[0])
	if c.Prefix {
		sb.WriteByte('*')
	}
	return sb.String()
}

// Query matches a document when every Must clause matches, no MustNot clause
// matches and, without Must clauses, at least one Should clause matches.
type Query struct {
	Clauses  []Clause
	RawQuery string
}

// String renders the query in a canonical form, usable as a cache key.
func (q *Query) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Positive reports whether the query can match anything at all. A query of
// prohibited clauses only matches nothing.
func (q *Query) Positive() bool {
	for _, c := range q.Clauses {
		if c.Occur != MustNot {
			return true
		}
	}
	return false
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokPhrase
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind     tokenKind
	text     string
	modifier Occur
	pos      int
}

func syntaxErr(query string, pos int, msg string) error {
	return &apperrors.QuerySyntaxError{Query: query, Pos: pos, Msg: msg}
}

// spaceAt reports whether the rune at byte offset i is whitespace, using the
// same definition as the index analyzer, and returns its width.
func spaceAt(query string, i int) (bool, int) {
	r, size := utf8.DecodeRuneInString(query[i:])
	return unicode.IsSpace(r), size
}

func lex(query string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(query) {
		if sp, n := spaceAt(query, i); sp {
			i += n
			continue
		}
		start := i
		mod := Should
		if query[i] == '+' || query[i] == '-' {
			if query[i] == '+' {
				mod = Must
			} else {
				mod = MustNot
			}
			i++
			if i == len(query) {
				return nil, syntaxErr(query, start, "operator "+string(query[start])+" expects an operand")
			}
			if sp, _ := spaceAt(query, i); sp {
				return nil, syntaxErr(query, start, "operator "+string(query[start])+" expects an operand")
			}
		}
		if query[i] == '"' {
			end := strings.IndexByte(query[i+1:], '"')
			if end < 0 {
				return nil, syntaxErr(query, i, "unterminated phrase")
			}
			tokens = append(tokens, token{kind: tokPhrase, text: query[i+1 : i+1+end], modifier: mod, pos: start})
			i += end + 2
			continue
		}
		j := i
		for j < len(query) && query[j] != '"' {
			sp, n := spaceAt(query, j)
			if sp {
				break
			}
			j += n
		}
		word := query[i:j]
		tok := token{kind: tokWord, text: word, modifier: mod, pos: start}
		if mod == Should {
			switch word {
			case "AND", "&&":
				tok.kind = tokAnd
			case "OR", "||":
				tok.kind = tokOr
			case "NOT", "!":
				tok.kind = tokNot
			}
		}
		tokens = append(tokens, tok)
		i = j
	}
	return tokens, nil
}

func clauseFor(query string, tok token) (Clause, error) {
	c := Clause{Occur: tok.modifier}
	if tok.kind == tokPhrase {
		for _, t := range tokenizer.Tokenize(tok.text) {
			c.Terms = append(c.Terms, t.Term)
		}
		if len(c.Terms) == 0 {
			return c, syntaxErr(query, tok.pos, "empty phrase")
		}
		return c, nil
	}
	word := tok.text
	if strings.HasSuffix(word, "*") && len(word) > 1 {
		c.Prefix = true
		word = strings.TrimSuffix(word, "*")
	}
	if strings.HasPrefix(word, "*") {
		return c, syntaxErr(query, tok.pos, "'*' not allowed as first character of a term")
	}
	c.Terms = []string{tokenizer.Normalize(word)}
	return c, nil
}

// Parse analyses query with the index-time analyzer. Malformed input yields
// a *errors.QuerySyntaxError.
func Parse(query string) (*Query, error) {
	if strings.TrimSpace(query) == "" {
		return nil, syntaxErr(query, -1, "empty query")
	}
	tokens, err := lex(query)
	if err != nil {
		return nil, err
	}
	q := &Query{RawQuery: query}
	var conj *token
	var not *token
	for i := range tokens {
		tok := tokens[i]
		switch tok.kind {
		case tokAnd, tokOr:
			if len(q.Clauses) == 0 || conj != nil || not != nil {
				return nil, syntaxErr(query, tok.pos, "operator "+tok.text+" expects an operand")
			}
			conj = &tokens[i]
			continue
		case tokNot:
			if not != nil {
				return nil, syntaxErr(query, tok.pos, "operator "+tok.text+" expects an operand")
			}
			not = &tokens[i]
			continue
		}
		c, err := clauseFor(query, tok)
		if err != nil {
			return nil, err
		}
		if not != nil {
			c.Occur = MustNot
		}
		if conj != nil && conj.kind == tokAnd {
			last := &q.Clauses[len(q.Clauses)-1]
			if last.Occur == Should {
				last.Occur = Must
			}
			if c.Occur == Should {
				c.Occur = Must
			}
		}
		q.Clauses = append(q.Clauses, c)
		conj, not = nil, nil
	}
	if conj != nil {
		return nil, syntaxErr(query, conj.pos, "operator "+conj.text+" expects an operand")
	}
	if not != nil {
		return nil, syntaxErr(query, not.pos, "operator "+not.text+" expects an operand")
	}
	return q, nil
}
