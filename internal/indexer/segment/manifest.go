package segment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ManifestName is the commit point. It is written last during a commit, so
// the files it lists are always complete.
const ManifestName = "segments.json"

const (
	segmentExt = ".spdx"
	deletesExt = ".del"
)

// Manifest lists the segments and deletion files of one commit.
type Manifest struct {
	Generation  uint64          `json:"generation"`
	NextSegment uint64          `json:"next_segment"`
	Segments    []ManifestEntry `json:"segments"`
}

type ManifestEntry struct {
	Name    string `json:"name"`
	Deletes string `json:"deletes,omitempty"`
	Docs    int    `json:"docs"`
}

// Files returns every file name the manifest references, itself included.
func (m *Manifest) Files() map[string]struct{} {
	files := map[string]struct{}{ManifestName: {}}
	for _, e := range m.Segments {
		files[e.Name] = struct{}{}
		if e.Deletes != "" {
			files[e.Deletes] = struct{}{}
		}
	}
	return files
}

func EncodeManifest(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}
	return data, nil
}

func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	for _, e := range m.Segments {
		if !strings.HasSuffix(e.Name, segmentExt) {
			return nil, fmt.Errorf("manifest references %q, not a segment", e.Name)
		}
	}
	return &m, nil
}

// SegmentName returns the file name of the n-th segment.
func SegmentName(n uint64) string {
	return fmt.Sprintf("seg_%08d%s", n, segmentExt)
}

// DeletesName returns the file name of a segment's deletion set at the given
// commit generation.
func DeletesName(segment string, generation uint64) string {
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(segment, segmentExt), generation, deletesExt)
}

// IsIndexFile reports whether name was produced by this package.
func IsIndexFile(name string) bool {
	return name == ManifestName || strings.HasSuffix(name, segmentExt) || strings.HasSuffix(name, deletesExt)
}
