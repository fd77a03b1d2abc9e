package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/tokenizer"
)

// MemoryIndex buffers freshly written documents until they are frozen into an
// immutable Segment. It is not safe for concurrent use; the Store serialises
// every call under its writer lock.
type MemoryIndex struct {
	docs  []StoredDoc
	index map[string]PostingList
	size  int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[string]PostingList),
	}
}

// AddDocument tokenizes doc.Text and appends the document, returning its
// ordinal within the buffer.
func (m *MemoryIndex) AddDocument(doc Document) int32 {
	ord := int32(len(m.docs))
	tokens := tokenizer.Tokenize(doc.Text)

	termData := make(map[string]*Posting)
	order := make([]string, 0)
	for _, token := range tokens {
		p, exists := termData[token.Term]
		if !exists {
			p = &Posting{
				Doc:       ord,
				Positions: make([]int, 0, 4),
			}
			termData[token.Term] = p
			order = append(order, token.Term)
		}
		p.Frequency++
		p.Positions = append(p.Positions, token.Position)
	}
	for _, term := range order {
		posting := termData[term]
		m.index[term] = append(m.index[term], *posting)
		m.size += int64(len(term) + len(posting.Positions)*8 + 32)
	}
	m.docs = append(m.docs, StoredDoc{
		Path:   doc.Path,
		Name:   doc.Name,
		Length: len(tokens),
	})
	m.size += int64(len(doc.Path) + len(doc.Name) + 48)
	return ord
}

// Doc returns the stored fields of a buffered document.
func (m *MemoryIndex) Doc(ord int32) StoredDoc {
	return m.docs[ord]
}

// Size is an estimate of the buffer's heap footprint in bytes.
func (m *MemoryIndex) Size() int64 {
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	return len(m.docs)
}

// Freeze turns the buffered documents into a Segment and empties the buffer.
func (m *MemoryIndex) Freeze(name string) *Segment {
	entries := make([]TermEntry, 0, len(m.index))
	for term, postings := range m.index {
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	seg := NewSegment(name, m.docs, entries)
	m.Reset()
	return seg
}

func (m *MemoryIndex) Reset() {
	m.docs = nil
	m.index = make(map[string]PostingList)
	m.size = 0
}
