package segment

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSegment() *index.Segment {
	m := index.NewMemoryIndex()
	m.AddDocument(index.Document{Path: "/docs/readme.md", Name: "readme.md", Text: "Search the virtual tree"})
	m.AddDocument(index.Document{Path: "/bin/tool", Name: "tool"})
	m.AddDocument(index.Document{Path: "/docs/guide.txt", Name: "guide.txt", Text: "tree walking guide"})
	return m.Freeze(SegmentName(7))
}

func TestEncodeDecode(t *testing.T) {
	seg := sampleSegment()
	data, err := Encode(seg)
	require.NoError(t, err)

	h, err := ReadHeader(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h.DocCount)
	assert.Equal(t, FormatVersion, h.Version)

	got, err := Decode(seg.Name(), data)
	require.NoError(t, err)
	assert.Equal(t, seg.Docs(), got.Docs())
	assert.Equal(t, seg.Entries(), got.Entries())
	assert.Equal(t, seg.TotalLength(), got.TotalLength())
	assert.Len(t, got.PathPrefix("/docs/"), 2)
}

func TestDecodeRejectsCorruption(t *testing.T) {
	data, err := Encode(sampleSegment())
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[HeaderSize+3] ^= 0xff
	_, err = Decode("x", flipped)
	assert.ErrorContains(t, err, "checksum")

	badMagic := append([]byte(nil), data...)
	badMagic[0] = 0
	_, err = Decode("x", badMagic)
	assert.ErrorContains(t, err, "magic")

	_, err = Decode("x", data[:10])
	assert.Error(t, err)
}

func TestDeletesRoundTrip(t *testing.T) {
	del := index.NewBits(4)
	del.Set(1)
	del.Set(70)
	data, err := EncodeDeletes(del)
	require.NoError(t, err)
	got, err := DecodeDeletes(data)
	require.NoError(t, err)
	assert.True(t, got.Test(1))
	assert.True(t, got.Test(70))
	assert.Equal(t, 2, got.Count())

	data[len(data)-1] ^= 0x01
	_, err = DecodeDeletes(data)
	assert.Error(t, err)
}

func TestManifest(t *testing.T) {
	m := &Manifest{
		Generation:  3,
		NextSegment: 9,
		Segments: []ManifestEntry{
			{Name: SegmentName(7), Deletes: DeletesName(SegmentName(7), 3), Docs: 3},
			{Name: SegmentName(8), Docs: 1},
		},
	}
	data, err := EncodeManifest(m)
	require.NoError(t, err)
	got, err := DecodeManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	files := got.Files()
	assert.Contains(t, files, ManifestName)
	assert.Contains(t, files, "seg_00000007_3.del")
	assert.Len(t, files, 4)

	assert.True(t, IsIndexFile("seg_00000001.spdx"))
	assert.False(t, IsIndexFile("notes.txt"))

	_, err = DecodeManifest([]byte(`{"segments":[{"name":"evil.sh"}]}`))
	assert.Error(t, err)
}
