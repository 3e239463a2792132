package bm25

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/kailas-cloud/queryforge/internal/searcher/analysis"
)

// FeedbackConfig holds pseudo-relevance feedback settings shared by RM3 and Rocchio.
type FeedbackConfig struct {
	FbDocs              int     `mapstructure:"fb_docs"`
	FbTerms             int     `mapstructure:"fb_terms"`
	OriginalQueryWeight float64 `mapstructure:"original_query_weight"`
}

const maxFeedbackTermLen = 20

// feedbackTerms tokenizes a feedback document and keeps expansion-worthy terms.
func (idx *index) feedbackTerms(doc int) map[string]int {
	counts := analysis.TermCounts(idx.docs[doc].Content, true)
	for t := range counts {
		if utf8.RuneCountInString(t) > maxFeedbackTermLen || isNumeric(t) {
			delete(counts, t)
		}
	}
	return counts
}

// rm3 builds the RM3 expanded query: the relevance model estimated from the
// top feedback documents, truncated to FbTerms, interpolated with the
// normalised original query.
func (idx *index) rm3(query map[string]float64, top []scored, cfg FeedbackConfig) map[string]float64 {
	if len(top) == 0 {
		return query
	}
	docs := top[:min(cfg.FbDocs, len(top))]

	var scoreSum float64
	for _, d := range docs {
		scoreSum += d.score
	}

	rel := make(map[string]float64)
	for _, d := range docs {
		counts := idx.feedbackTerms(d.doc)
		var dl int
		for _, c := range counts {
			dl += c
		}
		if dl == 0 {
			continue
		}
		pq := 1.0 / float64(len(docs))
		if scoreSum > 0 {
			pq = d.score / scoreSum
		}
		for t, c := range counts {
			rel[t] += pq * float64(c) / float64(dl)
		}
	}
	rel = normalize(topTerms(rel, cfg.FbTerms))

	return interpolate(normalize(query), rel, cfg.OriginalQueryWeight)
}

// rocchio moves the query toward the centroid of the top documents and,
// when gamma > 0, away from the centroid of the bottom ones.
func (idx *index) rocchio(query map[string]float64, ranked []scored, cfg FeedbackConfig, beta, gamma float64) map[string]float64 {
	if len(ranked) == 0 {
		return query
	}
	n := min(cfg.FbDocs, len(ranked))
	pos := idx.centroid(ranked[:n])

	out := make(map[string]float64, len(query)+len(pos))
	for t, w := range normalize(query) {
		out[t] += w
	}
	for t, w := range normalize(topTerms(pos, cfg.FbTerms)) {
		out[t] += beta * w
	}
	if gamma > 0 && len(ranked) > n {
		neg := idx.centroid(ranked[max(n, len(ranked)-n):])
		for t, w := range normalize(topTerms(neg, cfg.FbTerms)) {
			out[t] -= gamma * w
		}
	}
	for t, w := range out {
		if w <= 0 {
			delete(out, t)
		}
	}
	return out
}

func (idx *index) centroid(docs []scored) map[string]float64 {
	out := make(map[string]float64)
	for _, d := range docs {
		counts := idx.feedbackTerms(d.doc)
		var norm float64
		for _, c := range counts {
			norm += float64(c * c)
		}
		if norm == 0 {
			continue
		}
		norm = math.Sqrt(norm)
		for t, c := range counts {
			out[t] += float64(c) / norm / float64(len(docs))
		}
	}
	return out
}

func topTerms(weights map[string]float64, n int) map[string]float64 {
	if n <= 0 || len(weights) <= n {
		return weights
	}
	terms := make([]string, 0, len(weights))
	for t := range weights {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if weights[terms[i]] != weights[terms[j]] {
			return weights[terms[i]] > weights[terms[j]]
		}
		return terms[i] < terms[j]
	})
	out := make(map[string]float64, n)
	for _, t := range terms[:n] {
		out[t] = weights[t]
	}
	return out
}

func normalize(weights map[string]float64) map[string]float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	out := make(map[string]float64, len(weights))
	if sum == 0 {
		return out
	}
	for t, w := range weights {
		out[t] = w / sum
	}
	return out
}

func interpolate(orig, fb map[string]float64, alpha float64) map[string]float64 {
	out := make(map[string]float64, len(orig)+len(fb))
	for t, w := range orig {
		out[t] += alpha * w
	}
	for t, w := range fb {
		out[t] += (1 - alpha) * w
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
