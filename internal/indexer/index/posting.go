package index

// Field names of an indexed document.
const (
	FieldPath = "path"
	FieldName = "name"
	FieldText = "text"
)

// Document is the unit written to the index. Path is the unique key. Text is
// the file content to tokenize; empty means content was not indexed.
type Document struct {
	Path string
	Name string
	Text string
}

// StoredDoc is what a segment keeps per document besides postings. Length is
// the token count of the indexed text, used for length normalisation.
type StoredDoc struct {
	Path   string `json:"p"`
	Name   string `json:"n"`
	Length int    `json:"l,omitempty"`
}

// Posting records the occurrences of one term in one document. Doc is the
// document ordinal within its segment.
type Posting struct {
	Doc       int32 `json:"d"`
	Frequency int   `json:"f"`
	Positions []int `json:"p"`
}

// PostingList is ordered by ascending Doc.
type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}
