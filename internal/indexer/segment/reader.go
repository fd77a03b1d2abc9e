package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/index"
)

// ReadHeader validates the framing of an encoded segment and returns its
// header.
func ReadHeader(data []byte) (SegmentHeader, error) {
	if len(data) < HeaderSize+FooterSize {
		return SegmentHeader{}, fmt.Errorf("invalid segment: %d bytes is too short", len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicBytes {
		return SegmentHeader{}, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	body := data[:len(data)-FooterSize]
	footer := data[len(data)-FooterSize:]
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(body) {
		return SegmentHeader{}, fmt.Errorf("invalid segment file: checksum mismatch")
	}
	h := SegmentHeader{
		Magic:        magic,
		Version:      binary.LittleEndian.Uint32(data[4:8]),
		TermCount:    binary.LittleEndian.Uint32(data[8:12]),
		DocCount:     binary.LittleEndian.Uint32(data[12:16]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(data[16:24])),
		PostOffset:   int64(binary.LittleEndian.Uint64(data[24:32])),
		PostSize:     int64(binary.LittleEndian.Uint64(data[32:40])),
		DictOffset:   int64(binary.LittleEndian.Uint64(data[40:48])),
		DictSize:     int64(binary.LittleEndian.Uint64(data[48:56])),
		StoredOffset: int64(binary.LittleEndian.Uint64(data[56:64])),
		StoredSize:   int64(binary.LittleEndian.Uint32(footer[4:8])),
	}
	if h.Version != FormatVersion {
		return SegmentHeader{}, fmt.Errorf("unsupported segment version %d", h.Version)
	}
	if h.StoredOffset+h.StoredSize != int64(len(body)) {
		return SegmentHeader{}, fmt.Errorf("invalid segment file: section sizes do not add up")
	}
	return h, nil
}

// Decode rebuilds a segment from its encoded form.
func Decode(name string, data []byte) (*index.Segment, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", name, err)
	}
	var dict []DictEntry
	if err := json.Unmarshal(data[h.DictOffset:h.DictOffset+h.DictSize], &dict); err != nil {
		return nil, fmt.Errorf("segment %s: parsing dictionary: %w", name, err)
	}
	var docs []index.StoredDoc
	if err := json.Unmarshal(data[h.StoredOffset:h.StoredOffset+h.StoredSize], &docs); err != nil {
		return nil, fmt.Errorf("segment %s: parsing stored documents: %w", name, err)
	}
	if uint32(len(docs)) != h.DocCount {
		return nil, fmt.Errorf("segment %s: header says %d docs, found %d", name, h.DocCount, len(docs))
	}
	entries := make([]index.TermEntry, 0, len(dict))
	for _, d := range dict {
		start := h.PostOffset + d.PostOffset
		var postings index.PostingList
		if err := json.Unmarshal(data[start:start+int64(d.PostLen)], &postings); err != nil {
			return nil, fmt.Errorf("segment %s: parsing postings for %q: %w", name, d.Term, err)
		}
		entries = append(entries, index.TermEntry{Term: d.Term, Postings: postings})
	}
	return index.NewSegment(name, docs, entries), nil
}

// DecodeDeletes reverses EncodeDeletes.
func DecodeDeletes(data []byte) (*index.Bits, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("invalid deletion file: %d bytes", len(data))
	}
	if sum := binary.LittleEndian.Uint32(data[:4]); sum != crc32.ChecksumIEEE(data[4:]) {
		return nil, fmt.Errorf("invalid deletion file: checksum mismatch")
	}
	del := &index.Bits{}
	if err := del.UnmarshalBinary(data[4:]); err != nil {
		return nil, fmt.Errorf("invalid deletion file: %w", err)
	}
	return del, nil
}
