// Package executor compiles query expressions and runs them against index
// snapshots.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/vfs-search/pkg/errors"
)

// DefaultLimit is the result cap applied when none is configured.
const DefaultLimit = 1000

// Expression is a structured query. Every non-empty field is a clause and
// all clauses must match.
type Expression struct {
	// Path matches documents whose path starts with it.
	Path string `json:"path,omitempty"`
	// Name is a wildcard pattern ("*" and "?") over the exact file name.
	Name string `json:"name,omitempty"`
	// Text is free text over the file content.
	Text string `json:"text,omitempty"`
}

func (e Expression) IsEmpty() bool {
	return e.Path == "" && e.Name == "" && e.Text == ""
}

// Compiled is an Expression ready to run against any snapshot.
type Compiled struct {
	Expr      Expression
	text      *parser.Query
	matchName func(string) bool
}

// Key identifies the compiled query independently of how the free text was
// spelled.
func (c *Compiled) Key() string {
	text := ""
	if c.text != nil {
		text = c.text.String()
	}
	return c.Expr.Path + "\x00" + c.Expr.Name + "\x00" + text
}

// Compile validates expr. Malformed free text yields a QuerySyntaxError; an
// expression without clauses is rejected with ErrInvalidInput.
func Compile(expr Expression) (*Compiled, error) {
	if expr.IsEmpty() {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query needs at least one of path, name or text")
	}
	c := &Compiled{Expr: expr}
	if expr.Text != "" {
		q, err := parser.Parse(expr.Text)
		if err != nil {
			return nil, err
		}
		c.text = q
	}
	if expr.Name != "" {
		match, err := compileName(expr.Name)
		if err != nil {
			return nil, err
		}
		c.matchName = match
	}
	return c, nil
}

func compileName(pattern string) (func(string) bool, error) {
	if !strings.ContainsAny(pattern, "*?") {
		return func(name string) bool { return name == pattern }, nil
	}
	var sb strings.Builder
	for _, r := range pattern {
		switch r {
		case '\\', '[', ']', '{', '}':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	glob := sb.String()
	if !doublestar.ValidatePattern(glob) {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid name pattern %q", pattern)
	}
	return func(name string) bool {
		ok, _ := doublestar.Match(glob, name)
		return ok
	}, nil
}

// SnapshotSource hands out reference-counted snapshots.
type SnapshotSource interface {
	Acquire() (*indexer.Snapshot, error)
	Release(s *indexer.Snapshot)
}

type Result struct {
	Paths      []string     `json:"paths"`
	Hits       []ranker.Hit `json:"hits"`
	TotalHits  int          `json:"total_hits"`
	Generation uint64       `json:"generation"`
}

type Executor struct {
	snapshots SnapshotSource
	limit     int
	logger    *slog.Logger
}

func New(snapshots SnapshotSource, limit int) *Executor {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Executor{
		snapshots: snapshots,
		limit:     limit,
		logger:    slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Limit() int { return e.limit }

// Search compiles expr and runs it on the current snapshot. The snapshot is
// released before Search returns.
func (e *Executor) Search(ctx context.Context, expr Expression) (*Result, error) {
	c, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	snap, err := e.snapshots.Acquire()
	if err != nil {
		return nil, err
	}
	defer e.snapshots.Release(snap)
	return e.Execute(ctx, snap, c)
}

// Execute runs c against snap, which the caller keeps referenced. More
// matches than the limit fail with a ResultSetTooLargeError carrying the
// true count; results are never truncated.
func (e *Executor) Execute(ctx context.Context, snap *indexer.Snapshot, c *Compiled) (*Result, error) {
	scorer := ranker.NewScorer(ranker.RankParams{
		TotalDocs:    snap.NumDocs(),
		AvgDocLength: snap.AvgDocLength(),
	}, snap.DocFreq)

	var hits []ranker.Hit
	if c.text == nil || c.text.Positive() {
		base := 0
		for _, v := range snap.Segments() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			hits = e.collect(hits, v, base, c, scorer)
			base += v.Segment.Len()
		}
	}

	if len(hits) > e.limit {
		e.logger.Warn("result set too large",
			"path", c.Expr.Path,
			"name", c.Expr.Name,
			"text", c.Expr.Text,
			"matches", len(hits),
			"limit", e.limit,
		)
		return nil, &apperrors.ResultSetTooLargeError{Total: len(hits), Limit: e.limit}
	}
	ranker.Sort(hits)
	paths := make([]string, len(hits))
	for i, h := range hits {
		paths[i] = h.Path
	}
	e.logger.Debug("query executed",
		"path", c.Expr.Path,
		"name", c.Expr.Name,
		"text", c.Expr.Text,
		"results", len(hits),
		"generation", snap.Generation(),
	)
	return &Result{
		Paths:      paths,
		Hits:       hits,
		TotalHits:  len(hits),
		Generation: snap.Generation(),
	}, nil
}

func (e *Executor) collect(hits []ranker.Hit, v indexer.SegmentView, base int, c *Compiled, scorer *ranker.Scorer) []ranker.Hit {
	seg := v.Segment
	var candidates []int32
	switch {
	case c.Expr.Path != "":
		candidates = seg.PathPrefix(c.Expr.Path)
	case c.text != nil:
		candidates = textCandidates(seg, c.text)
	default:
		candidates = make([]int32, seg.Len())
		for i := range candidates {
			candidates[i] = int32(i)
		}
	}
	for _, ord := range candidates {
		if !v.Live(ord) {
			continue
		}
		doc := seg.Doc(ord)
		score := 0.0
		if c.Expr.Path != "" {
			score++
		}
		if c.matchName != nil {
			if !c.matchName(doc.Name) {
				continue
			}
			score++
		}
		if c.text != nil {
			ok, s := matchText(seg, ord, doc.Length, c.text, scorer)
			if !ok {
				continue
			}
			score += s
		}
		hits = append(hits, ranker.Hit{Path: doc.Path, Score: score, Order: base + int(ord)})
	}
	return hits
}

// textCandidates lists the documents that can satisfy q's positive clauses:
// those holding a Must clause's terms or, without Must clauses, any Should
// clause's terms.
func textCandidates(seg *index.Segment, q *parser.Query) []int32 {
	occur := parser.Should
	for _, cl := range q.Clauses {
		if cl.Occur == parser.Must {
			occur = parser.Must
			break
		}
	}
	seen := make(map[int32]struct{})
	for _, cl := range q.Clauses {
		if cl.Occur != occur {
			continue
		}
		terms := cl.Terms[:1]
		if cl.Prefix {
			terms = seg.TermsWithPrefix(cl.Terms[0])
		}
		for _, term := range terms {
			for _, p := range seg.Postings(term) {
				seen[p.Doc] = struct{}{}
			}
		}
		if occur == parser.Must {
			break
		}
	}
	out := make([]int32, 0, len(seen))
	for ord := range seen {
		out = append(out, ord)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func matchText(seg *index.Segment, ord int32, docLength int, q *parser.Query, scorer *ranker.Scorer) (bool, float64) {
	score := 0.0
	hasMust, matchedShould := false, false
	for _, cl := range q.Clauses {
		matched, s := matchClause(seg, ord, docLength, cl, scorer)
		switch cl.Occur {
		case parser.Must:
			hasMust = true
			if !matched {
				return false, 0
			}
			score += s
		case parser.MustNot:
			if matched {
				return false, 0
			}
		default:
			if matched {
				matchedShould = true
				score += s
			}
		}
	}
	if !hasMust && !matchedShould {
		return false, 0
	}
	return true, score
}

func findPosting(pl index.PostingList, ord int32) (index.Posting, bool) {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].Doc >= ord })
	if i < len(pl) && pl[i].Doc == ord {
		return pl[i], true
	}
	return index.Posting{}, false
}

func matchClause(seg *index.Segment, ord int32, docLength int, cl parser.Clause, scorer *ranker.Scorer) (bool, float64) {
	switch {
	case cl.Prefix:
		for _, term := range seg.TermsWithPrefix(cl.Terms[0]) {
			if _, ok := findPosting(seg.Postings(term), ord); ok {
				return true, 1
			}
		}
		return false, 0
	case cl.IsPhrase():
		freq := phraseFreq(seg, ord, cl.Terms)
		if freq == 0 {
			return false, 0
		}
		score := 0.0
		for _, term := range cl.Terms {
			score += scorer.Term(term, freq, docLength)
		}
		return true, score
	default:
		p, ok := findPosting(seg.Postings(cl.Terms[0]), ord)
		if !ok {
			return false, 0
		}
		return true, scorer.Term(cl.Terms[0], p.Frequency, docLength)
	}
}

// phraseFreq counts the positions at which terms occur consecutively.
func phraseFreq(seg *index.Segment, ord int32, terms []string) int {
	positions := make([]map[int]struct{}, len(terms))
	var first []int
	for i, term := range terms {
		p, ok := findPosting(seg.Postings(term), ord)
		if !ok {
			return 0
		}
		if i == 0 {
			first = p.Positions
			continue
		}
		set := make(map[int]struct{}, len(p.Positions))
		for _, pos := range p.Positions {
			set[pos] = struct{}{}
		}
		positions[i] = set
	}
	freq := 0
	for _, start := range first {
		found := true
		for i := 1; i < len(terms); i++ {
			if _, ok := positions[i][start+i]; !ok {
				found = false
				break
			}
		}
		if found {
			freq++
		}
	}
	return freq
}

// String describes the expression for logs.
func (e Expression) String() string {
	return fmt.Sprintf("path=%q name=%q text=%q", e.Path, e.Name, e.Text)
}
