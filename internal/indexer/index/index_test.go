package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndexFreeze(t *testing.T) {
	m := NewMemoryIndex()
	assert.Equal(t, int32(0), m.AddDocument(Document{Path: "/a/x.txt", Name: "x.txt", Text: "Hello hello World"}))
	assert.Equal(t, int32(1), m.AddDocument(Document{Path: "/a/b.bin", Name: "b.bin"}))
	assert.Equal(t, 2, m.DocCount())
	assert.Positive(t, m.Size())

	seg := m.Freeze("seg_1")
	assert.Equal(t, 0, m.DocCount())
	assert.Zero(t, m.Size())

	require.Equal(t, 2, seg.Len())
	hello := seg.Postings("hello")
	require.Len(t, hello, 1)
	assert.Equal(t, int32(0), hello[0].Doc)
	assert.Equal(t, 2, hello[0].Frequency)
	assert.Equal(t, []int{0, 1}, hello[0].Positions)
	assert.Nil(t, seg.Postings("Hello"))
	assert.Equal(t, 3, seg.Doc(0).Length)
	assert.Equal(t, int64(3), seg.TotalLength())
}

func TestSegmentPathPrefix(t *testing.T) {
	m := NewMemoryIndex()
	for _, p := range []string{"/a/bc", "/a/b/y", "/z", "/a/b/x"} {
		m.AddDocument(Document{Path: p})
	}
	seg := m.Freeze("s")

	paths := func(ords []int32) []string {
		out := make([]string, 0, len(ords))
		for _, o := range ords {
			out = append(out, seg.Doc(o).Path)
		}
		return out
	}
	assert.Equal(t, []string{"/a/b/x", "/a/b/y"}, paths(seg.PathPrefix("/a/b/")))
	assert.Equal(t, []string{"/a/b/x", "/a/b/y", "/a/bc"}, paths(seg.PathPrefix("/a/b")))
	assert.Empty(t, seg.PathPrefix("/q"))
}

func TestSegmentTermsWithPrefix(t *testing.T) {
	m := NewMemoryIndex()
	m.AddDocument(Document{Path: "/1", Text: "index indexer indexing inbox"})
	seg := m.Freeze("s")
	assert.Equal(t, []string{"index", "indexer", "indexing"}, seg.TermsWithPrefix("index"))
	assert.Empty(t, seg.TermsWithPrefix("zzz"))
}

func TestMergeDropsDeleted(t *testing.T) {
	m := NewMemoryIndex()
	m.AddDocument(Document{Path: "/1", Text: "alpha beta"})
	m.AddDocument(Document{Path: "/2", Text: "beta"})
	first := m.Freeze("s1")
	m.AddDocument(Document{Path: "/3", Text: "beta gamma"})
	second := m.Freeze("s2")

	del := NewBits(first.Len())
	del.Set(0)
	merged := Merge("s3", []*Segment{first, second}, []*Bits{del, nil})

	require.Equal(t, 2, merged.Len())
	assert.Equal(t, "/2", merged.Doc(0).Path)
	assert.Equal(t, "/3", merged.Doc(1).Path)
	assert.Nil(t, merged.Postings("alpha"))
	beta := merged.Postings("beta")
	require.Len(t, beta, 2)
	assert.Equal(t, int32(0), beta[0].Doc)
	assert.Equal(t, int32(1), beta[1].Doc)
}

func TestBits(t *testing.T) {
	var nilBits *Bits
	assert.False(t, nilBits.Test(3))
	assert.Zero(t, nilBits.Count())

	b := NewBits(10)
	assert.True(t, b.Set(3))
	assert.False(t, b.Set(3))
	assert.True(t, b.Set(130))
	assert.Equal(t, 2, b.Count())

	c := b.Clone()
	c.Set(5)
	assert.False(t, b.Test(5))
	assert.True(t, c.Test(5))

	data, err := c.MarshalBinary()
	require.NoError(t, err)
	var d Bits
	require.NoError(t, d.UnmarshalBinary(data))
	assert.Equal(t, 3, d.Count())
	assert.True(t, d.Test(130))
	assert.Error(t, d.UnmarshalBinary([]byte{1, 2, 3}))
}
