// Package segment defines the on-store encoding of index segments, deletion
// sets and the commit manifest. It only produces and consumes bytes; where
// those bytes live is the directory package's concern.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 8
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic        uint32
	Version      uint32
	TermCount    uint32
	DocCount     uint32
	CreatedAt    int64
	PostOffset   int64
	PostSize     int64
	DictOffset   int64
	DictSize     int64
	StoredOffset int64
	StoredSize   int64
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Encode serialises seg as header, postings, dictionary, stored documents and
// a CRC32 footer over everything before it.
func Encode(seg *index.Segment) ([]byte, error) {
	entries := seg.Entries()
	buf := make([]byte, HeaderSize, int64(HeaderSize)+seg.Size())

	postingsStart := int64(len(buf))
	dict := make([]DictEntry, 0, len(entries))
	for _, entry := range entries {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return nil, fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: int64(len(buf)) - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		buf = append(buf, postingsData...)
	}
	postingsSize := int64(len(buf)) - postingsStart

	dictStart := int64(len(buf))
	dictData, err := json.Marshal(dict)
	if err != nil {
		return nil, fmt.Errorf("marshaling dictionary: %w", err)
	}
	buf = append(buf, dictData...)

	storedStart := int64(len(buf))
	storedData, err := json.Marshal(seg.Docs())
	if err != nil {
		return nil, fmt.Errorf("marshaling stored documents: %w", err)
	}
	buf = append(buf, storedData...)

	header := buf[:HeaderSize]
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(seg.Len()))
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(postingsStart))
	binary.LittleEndian.PutUint64(header[32:40], uint64(postingsSize))
	binary.LittleEndian.PutUint64(header[40:48], uint64(dictStart))
	binary.LittleEndian.PutUint64(header[48:56], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(header[56:64], uint64(storedStart))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(buf))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(storedData)))
	return append(buf, footer...), nil
}

// EncodeDeletes serialises a deletion set with a CRC32 prefix.
func EncodeDeletes(del *index.Bits) ([]byte, error) {
	data, err := del.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshaling deletions: %w", err)
	}
	out := make([]byte, 4, 4+len(data))
	binary.LittleEndian.PutUint32(out, crc32.ChecksumIEEE(data))
	return append(out, data...), nil
}
