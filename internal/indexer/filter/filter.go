// Package filter decides whether a file's content is tokenized. Filters never
// affect whether a file's path and name are indexed.
package filter

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Adithya-Monish-Kumar-K/vfs-search/internal/vfs"
)

// Filter accepts a file when its content should be indexed. Implementations
// must be comparable so a registered filter can be removed again; use a
// pointer type for anything holding slices, maps or funcs.
type Filter interface {
	Accept(f vfs.File) bool
}

// MediaType accepts text-like media types and rejects binary content.
type MediaType struct{}

var textApplicationTypes = map[string]struct{}{
	"application/json":          {},
	"application/xml":           {},
	"application/javascript":    {},
	"application/x-javascript":  {},
	"application/typescript":    {},
	"application/x-sh":          {},
	"application/x-shellscript": {},
	"application/x-yaml":        {},
	"application/yaml":          {},
	"application/toml":          {},
	"application/sql":           {},
	"application/x-httpd-php":   {},
	"application/x-python":      {},
	"application/x-tex":         {},
}

func (MediaType) Accept(f vfs.File) bool {
	return IsTextMediaType(f.MediaType())
}

func IsTextMediaType(mt string) bool {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	if _, ok := textApplicationTypes[mt]; ok {
		return true
	}
	return strings.HasSuffix(mt, "+xml") || strings.HasSuffix(mt, "+json")
}

// Glob rejects files whose path matches any of its doublestar patterns.
type Glob struct {
	patterns []string
}

// NewGlob validates every pattern up front.
func NewGlob(patterns ...string) (*Glob, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return &Glob{patterns: append([]string(nil), patterns...)}, nil
}

func (g *Glob) Accept(f vfs.File) bool {
	p := strings.TrimPrefix(f.Path(), "/")
	for _, pattern := range g.patterns {
		if ok, _ := doublestar.Match(strings.TrimPrefix(pattern, "/"), p); ok {
			return false
		}
	}
	return true
}

// Func adapts a plain function into a removable Filter.
type Func struct {
	fn func(vfs.File) bool
}

func NewFunc(fn func(vfs.File) bool) *Func {
	return &Func{fn: fn}
}

func (f *Func) Accept(file vfs.File) bool {
	return f.fn(file)
}

// Set is a copy-on-write collection of filters. Readers take an immutable
// slice per decision, so registration never races a decision in flight.
type Set struct {
	filters atomic.Pointer[[]Filter]
}

// NewSet returns a set holding the given filters.
func NewSet(filters ...Filter) *Set {
	s := &Set{}
	list := append([]Filter(nil), filters...)
	s.filters.Store(&list)
	return s
}

// Default holds the MediaType filter only.
func Default() *Set {
	return NewSet(MediaType{})
}

func (s *Set) Add(f Filter) {
	for {
		old := s.filters.Load()
		next := make([]Filter, len(*old), len(*old)+1)
		copy(next, *old)
		next = append(next, f)
		if s.filters.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Remove drops the first registered filter equal to f and reports whether
// one was found.
func (s *Set) Remove(f Filter) bool {
	for {
		old := s.filters.Load()
		idx := -1
		for i, existing := range *old {
			if existing == f {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false
		}
		next := make([]Filter, 0, len(*old)-1)
		next = append(next, (*old)[:idx]...)
		next = append(next, (*old)[idx+1:]...)
		if s.filters.CompareAndSwap(old, &next) {
			return true
		}
	}
}

// Snapshot returns the filters registered right now. The slice must not be
// modified.
func (s *Set) Snapshot() []Filter {
	return *s.filters.Load()
}

func (s *Set) Len() int {
	return len(s.Snapshot())
}

// Accept reports whether every filter accepts f.
func (s *Set) Accept(f vfs.File) bool {
	for _, filter := range s.Snapshot() {
		if !filter.Accept(f) {
			return false
		}
	}
	return true
}
