// Package benchmark contains Go benchmarks for the index store, the tree
// walk and the query pipeline, measuring throughput and allocation
// behaviour.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs/memfs"
	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfsindex"
)

const body = "this is a benchmark document with several terms for testing the indexing performance of our memory index"

func memoryDir() (directory.Directory, error) {
	return directory.NewMemory(0), nil
}

// BenchmarkMemoryIndexAdd measures per-document insert throughput into the
// RAM buffer.
func BenchmarkMemoryIndexAdd(b *testing.B) {
	mi := index.NewMemoryIndex()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mi.AddDocument(index.Document{Path: fmt.Sprintf("/bench/doc-%d.txt", i), Name: "doc.txt", Text: body})
	}
}

// BenchmarkStoreUpsert includes replace-by-path bookkeeping and automatic
// flushes of the buffer.
func BenchmarkStoreUpsert(b *testing.B) {
	s := indexer.NewStore(indexer.Options{Directory: memoryDir, RAMBufferBytes: 1 << 20})
	if err := s.Open(); err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Upsert(index.Document{Path: fmt.Sprintf("/bench/doc-%d.txt", i%5000), Name: "doc.txt", Text: body}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkSegmentMerge measures merging ten flushed segments.
func BenchmarkSegmentMerge(b *testing.B) {
	segs := make([]*index.Segment, 10)
	deleted := make([]*index.Bits, 10)
	for s := range segs {
		mi := index.NewMemoryIndex()
		for i := 0; i < 1000; i++ {
			mi.AddDocument(index.Document{Path: fmt.Sprintf("/s%d/doc-%d.txt", s, i), Name: "doc.txt", Text: body})
		}
		segs[s] = mi.Freeze(fmt.Sprintf("seg_%d", s))
		deleted[s] = index.NewBits(segs[s].Len())
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = index.Merge("merged", segs, deleted)
	}
}

func benchTree(b *testing.B, files int) *memfs.FS {
	b.Helper()
	fs := memfs.New()
	for i := 0; i < files; i++ {
		p := fmt.Sprintf("/d%d/sub%d/file-%d.txt", i%10, i%7, i)
		if err := fs.WriteFile(p, []byte(fmt.Sprintf("%s number %d", body, i))); err != nil {
			b.Fatal(err)
		}
	}
	return fs
}

// BenchmarkInitTree walks a 2 000 file tree into a fresh index.
func BenchmarkInitTree(b *testing.B) {
	fs := benchTree(b, 2000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := vfsindex.New(vfsindex.Options{Directory: memoryDir})
		if _, err := s.Init(fs); err != nil {
			b.Fatal(err)
		}
		s.Close()
	}
}

// BenchmarkSearchParallel measures concurrent query throughput against one
// open index.
func BenchmarkSearchParallel(b *testing.B) {
	s := vfsindex.New(vfsindex.Options{Directory: memoryDir, ResultLimit: 10000})
	if _, err := s.Init(benchTree(b, 5000)); err != nil {
		b.Fatal(err)
	}
	defer s.Close()
	expr := executor.Expression{Path: "/d3", Text: "benchmark AND performance"}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			if _, err := s.Search(ctx, expr); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
