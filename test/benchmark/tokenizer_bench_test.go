package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `A virtual file system presents projects, folders and files through one
        tree. The search index walks that tree, tokenizes the content of every text
        file and keeps an inverted index per segment. Deleted documents are masked
        with live-document bits until segments are merged.`,
	"long": strings.Repeat(`Snapshots give every query a consistent view of the index while
        writers keep upserting documents. Commits write new segment files first and
        the manifest last, so a crash never leaves a half-written index behind.
        Content filters decide which media types are tokenized; paths and names are
        always indexed. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Tokenize(text)
		}
	})
}

func BenchmarkNormalize(b *testing.B) {
	words := []string{"README", "Segment", "snapshot", "VirtualFile", "ÜBER", "index.go"}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		for _, w := range words {
			_ = tokenizer.Normalize(w)
		}
	}
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	baseWord := "virtual file search index snapshot "
	for _, size := range []int{10, 100, 500, 1000, 5000} {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}
