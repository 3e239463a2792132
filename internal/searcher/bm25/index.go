package bm25

import (
	"math"
	"sort"

	"github.com/kailas-cloud/queryforge/internal/dataset"
	"github.com/kailas-cloud/queryforge/internal/searcher/analysis"
)

type posting struct {
	doc int32
	tf  int32
}

// index is an immutable inverted index over a document set.
type index struct {
	docs      []dataset.Document
	docLen    []int32
	avgDocLen float64
	postings  map[string][]posting
	stopwords bool
}

func buildIndex(docs []dataset.Document, stopwords bool) *index {
	idx := &index{
		docs:      docs,
		docLen:    make([]int32, len(docs)),
		postings:  make(map[string][]posting),
		stopwords: stopwords,
	}
	var total int64
	for i, d := range docs {
		counts := analysis.TermCounts(d.Content, stopwords)
		n := 0
		for term, tf := range counts {
			idx.postings[term] = append(idx.postings[term], posting{doc: int32(i), tf: int32(tf)})
			n += tf
		}
		idx.docLen[i] = int32(n)
		total += int64(n)
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(total) / float64(len(docs))
	}
	return idx
}

// idf uses the Lucene BM25 formulation, always positive.
func (idx *index) idf(term string) float64 {
	n := float64(len(idx.docs))
	df := float64(len(idx.postings[term]))
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

type scored struct {
	doc   int
	score float64
}

// score ranks documents against weighted query terms and returns the top k.
// Ties keep corpus order.
func (idx *index) score(query map[string]float64, k1, b float64, k int) []scored {
	acc := make(map[int32]float64)
	for term, w := range query {
		if w == 0 {
			continue
		}
		plist := idx.postings[term]
		if len(plist) == 0 {
			continue
		}
		idf := idx.idf(term)
		for _, p := range plist {
			tf := float64(p.tf)
			norm := k1 * (1 - b + b*float64(idx.docLen[p.doc])/idx.avgDocLen)
			acc[p.doc] += w * idf * tf / (tf + norm)
		}
	}

	out := make([]scored, 0, len(acc))
	for d, s := range acc {
		out = append(out, scored{doc: int(d), score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].doc < out[j].doc
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// queryVector counts query terms; repeated words weigh more, which is how
// expanded queries emphasise the original text.
func (idx *index) queryVector(text string) map[string]float64 {
	out := make(map[string]float64)
	for _, t := range analysis.Tokenize(text, idx.stopwords) {
		out[t]++
	}
	return out
}
