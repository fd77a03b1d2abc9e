// Package ranker scores text matches with BM25. Ranking only orders results;
// it never decides which documents match.
package ranker

import (
	"math"
	"sort"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Hit is one matching document. Order is the document's position in index
// order and breaks score ties.
type Hit struct {
	Path  string  `json:"path"`
	Score float64 `json:"score"`
	Order int     `json:"-"`
}

type RankParams struct {
	TotalDocs    int
	AvgDocLength float64
}

// Scorer computes BM25 contributions against one snapshot's statistics.
type Scorer struct {
	params RankParams
	idf    map[string]float64
	df     func(term string) int
}

// NewScorer caches IDF values; df reports the live document frequency of a
// term.
func NewScorer(params RankParams, df func(term string) int) *Scorer {
	return &Scorer{params: params, idf: make(map[string]float64), df: df}
}

func (s *Scorer) IDF(term string) float64 {
	if v, ok := s.idf[term]; ok {
		return v
	}
	v := computeIDF(int64(s.params.TotalDocs), int64(s.df(term)))
	s.idf[term] = v
	return v
}

// Term is the BM25 contribution of term occurring freq times in a document
// of docLength tokens.
func (s *Scorer) Term(term string, freq, docLength int) float64 {
	return s.IDF(term) * computeTFNorm(float64(freq), float64(docLength), s.params.AvgDocLength)
}

// Sort orders hits by descending score, then index order, and rounds the
// scores for stable presentation.
func Sort(hits []Hit) {
	for i := range hits {
		hits[i].Score = math.Round(hits[i].Score*10000) / 10000
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Order < hits[j].Order
	})
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
