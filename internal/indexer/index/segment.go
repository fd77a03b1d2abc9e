package index

import (
	"sort"
	"strings"
)

// Segment is an immutable slice of the index: stored documents, the content
// term dictionary and its postings, and a path-sorted view of the documents
// for prefix lookups. Once built it is shared freely between the writer and
// any number of snapshots.
type Segment struct {
	name        string
	docs        []StoredDoc
	terms       []string
	postings    map[string]PostingList
	byPath      []int32
	totalLength int64
	size        int64
}

// NewSegment builds a segment. entries must be sorted by term and every
// posting list ordered by document ordinal.
func NewSegment(name string, docs []StoredDoc, entries []TermEntry) *Segment {
	s := &Segment{
		name:     name,
		docs:     docs,
		terms:    make([]string, 0, len(entries)),
		postings: make(map[string]PostingList, len(entries)),
		byPath:   make([]int32, len(docs)),
	}
	for _, e := range entries {
		s.terms = append(s.terms, e.Term)
		s.postings[e.Term] = e.Postings
		for _, p := range e.Postings {
			s.size += int64(len(p.Positions)*8 + 24)
		}
		s.size += int64(len(e.Term) + 32)
	}
	for i, d := range docs {
		s.byPath[i] = int32(i)
		s.totalLength += int64(d.Length)
		s.size += int64(len(d.Path) + len(d.Name) + 48)
	}
	sort.Slice(s.byPath, func(i, j int) bool {
		return docs[s.byPath[i]].Path < docs[s.byPath[j]].Path
	})
	return s
}

func (s *Segment) Name() string { return s.name }

func (s *Segment) Len() int { return len(s.docs) }

func (s *Segment) Doc(ord int32) StoredDoc { return s.docs[ord] }

// TotalLength is the sum of all document lengths, deleted ones included.
func (s *Segment) TotalLength() int64 { return s.totalLength }

// Size is an estimate of the segment's heap footprint in bytes.
func (s *Segment) Size() int64 { return s.size }

func (s *Segment) Postings(term string) PostingList {
	return s.postings[term]
}

// TermsWithPrefix returns the dictionary terms starting with prefix, in order.
func (s *Segment) TermsWithPrefix(prefix string) []string {
	start := sort.SearchStrings(s.terms, prefix)
	end := start
	for end < len(s.terms) && strings.HasPrefix(s.terms[end], prefix) {
		end++
	}
	return s.terms[start:end]
}

// PathPrefix returns the ordinals of documents whose path starts with prefix,
// in path order.
func (s *Segment) PathPrefix(prefix string) []int32 {
	start := sort.Search(len(s.byPath), func(i int) bool {
		return s.docs[s.byPath[i]].Path >= prefix
	})
	end := start
	for end < len(s.byPath) && strings.HasPrefix(s.docs[s.byPath[end]].Path, prefix) {
		end++
	}
	return s.byPath[start:end]
}

// Docs returns the stored documents. The slice must not be modified.
func (s *Segment) Docs() []StoredDoc { return s.docs }

// Entries returns the term dictionary with postings, sorted by term.
func (s *Segment) Entries() []TermEntry {
	entries := make([]TermEntry, 0, len(s.terms))
	for _, term := range s.terms {
		entries = append(entries, TermEntry{Term: term, Postings: s.postings[term]})
	}
	return entries
}

// Merge combines the live documents of segs, in order, into a new segment.
// deleted[i] holds the deletions of segs[i] and may be nil.
func Merge(name string, segs []*Segment, deleted []*Bits) *Segment {
	remap := make([][]int32, len(segs))
	docs := make([]StoredDoc, 0)
	for i, seg := range segs {
		remap[i] = make([]int32, seg.Len())
		for ord := range seg.docs {
			if deleted[i].Test(ord) {
				remap[i][ord] = -1
				continue
			}
			remap[i][ord] = int32(len(docs))
			docs = append(docs, seg.docs[ord])
		}
	}
	merged := make(map[string]PostingList)
	for i, seg := range segs {
		for _, term := range seg.terms {
			for _, p := range seg.postings[term] {
				newOrd := remap[i][p.Doc]
				if newOrd < 0 {
					continue
				}
				p.Doc = newOrd
				merged[term] = append(merged[term], p)
			}
		}
	}
	entries := make([]TermEntry, 0, len(merged))
	for term, postings := range merged {
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return NewSegment(name, docs, entries)
}
