package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfsindex"
)

// BenchmarkQueryParse measures query parsing latency for queries of varying
// complexity.
func BenchmarkQueryParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "virtual filesystem"},
		{"boolean_and", "search AND index AND snapshot"},
		{"boolean_or", "indexing OR caching OR ranking"},
		{"with_not", "segment NOT merged"},
		{"phrase", `"read me first" +docs`},
		{"prefix", "index* AND snap*"},
	}

	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := parser.Parse(q.query); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkBM25Ranking measures scoring and sorting for different hit
// counts.
func BenchmarkBM25Ranking(b *testing.B) {
	for _, numDocs := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("docs_%d", numDocs), func(b *testing.B) {
			scorer := ranker.NewScorer(ranker.RankParams{TotalDocs: numDocs * 2, AvgDocLength: 40},
				func(string) int { return numDocs })
			hits := make([]ranker.Hit, numDocs)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for d := range hits {
					hits[d] = ranker.Hit{
						Path:  fmt.Sprintf("/doc-%d", d),
						Score: scorer.Term("search", d%10+1, 20+d%50),
						Order: d,
					}
				}
				ranker.Sort(hits)
			}
		})
	}
}

// BenchmarkSearchClauses compares path, name and text clauses on the same
// index.
func BenchmarkSearchClauses(b *testing.B) {
	s := vfsindex.New(vfsindex.Options{Directory: memoryDir, ResultLimit: 10000})
	if _, err := s.Init(benchTree(b, 3000)); err != nil {
		b.Fatal(err)
	}
	defer s.Close()

	cases := map[string]executor.Expression{
		"path":     {Path: "/d1/sub2"},
		"name":     {Name: "file-1*.txt"},
		"text":     {Text: "benchmark performance"},
		"combined": {Path: "/d4", Name: "*.txt", Text: `"several terms"`},
	}
	for name, expr := range cases {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := s.Search(ctx, expr); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
