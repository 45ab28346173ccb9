// Package tfidf implements a sparse TF-IDF vectorizer over unigrams and
// bigrams with a bounded vocabulary. It is the scoring model behind the
// knowledge base: cheap to rebuild, dependency-free at query time, and good
// enough for corpora up to a few thousand chunks.
package tfidf

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxFeatures bounds the vocabulary to the most frequent terms.
const DefaultMaxFeatures = 5000

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]{2,}`)

// Entry is one non-zero component of a sparse vector.
type Entry struct {
	Index  int
	Weight float64
}

// Vector is a sparse vector with entries sorted by ascending Index.
// Vectors produced by the vectorizer are L2-normalized.
type Vector []Entry

// Vectorizer maps text to sparse TF-IDF vectors. Fit builds the vocabulary
// and IDF table; Transform projects arbitrary text into the fitted space.
// A Vectorizer is immutable after Fit and safe for concurrent Transform calls.
type Vectorizer struct {
	vocabulary  map[string]int
	idf         []float64
	maxFeatures int
}

// NewVectorizer creates an unfitted vectorizer. maxFeatures <= 0 selects
// DefaultMaxFeatures.
func NewVectorizer(maxFeatures int) *Vectorizer {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	return &Vectorizer{maxFeatures: maxFeatures}
}

// Fit builds the vocabulary and smoothed IDF values from the corpus, keeping
// at most maxFeatures terms by descending corpus frequency. A corpus with no
// extractable tokens produces an empty vocabulary; Transform then returns
// empty vectors rather than failing.
func (v *Vectorizer) Fit(corpus []string) {
	df := make(map[string]int)
	totalFreq := make(map[string]int)
	for _, text := range corpus {
		terms := ngrams(text)
		seen := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			totalFreq[term]++
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			df[term]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}

	// Keep the most frequent terms when over the cap, then order
	// alphabetically so feature indices are stable across rebuilds.
	if len(terms) > v.maxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if totalFreq[terms[i]] != totalFreq[terms[j]] {
				return totalFreq[terms[i]] > totalFreq[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.maxFeatures]
	}
	sort.Strings(terms)

	v.vocabulary = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	n := float64(len(corpus))
	for i, term := range terms {
		v.vocabulary[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
}

// FitTransform fits on the corpus and returns one vector per document,
// in corpus order.
func (v *Vectorizer) FitTransform(corpus []string) []Vector {
	v.Fit(corpus)
	vectors := make([]Vector, len(corpus))
	for i, text := range corpus {
		vectors[i] = v.Transform(text)
	}
	return vectors
}

// Transform projects text into the fitted vector space. Terms outside the
// vocabulary are ignored; text with no known terms maps to an empty vector.
func (v *Vectorizer) Transform(text string) Vector {
	counts := make(map[int]int)
	for _, term := range ngrams(text) {
		if idx, ok := v.vocabulary[term]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	vec := make(Vector, 0, len(counts))
	for idx, count := range counts {
		vec = append(vec, Entry{Index: idx, Weight: float64(count) * v.idf[idx]})
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].Index < vec[j].Index })

	// L2 normalize so cosine reduces to a sparse dot product.
	var sum float64
	for _, e := range vec {
		sum += e.Weight * e.Weight
	}
	norm := math.Sqrt(sum)
	if norm > 0 {
		for i := range vec {
			vec[i].Weight /= norm
		}
	}
	return vec
}

// Cosine returns the cosine similarity of two sparse vectors. For the
// L2-normalized vectors this vectorizer produces, the result is in [0, 1].
func Cosine(a, b Vector) float64 {
	var dot, na, nb float64
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Index == b[j].Index:
			dot += a[i].Weight * b[j].Weight
			i++
			j++
		case a[i].Index < b[j].Index:
			i++
		default:
			j++
		}
	}
	for _, e := range a {
		na += e.Weight * e.Weight
	}
	for _, e := range b {
		nb += e.Weight * e.Weight
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ngrams tokenizes text and returns unigrams plus adjacent-pair bigrams.
func ngrams(text string) []string {
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return nil
	}
	terms := make([]string, 0, 2*len(tokens)-1)
	terms = append(terms, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		terms = append(terms, tokens[i]+" "+tokens[i+1])
	}
	return terms
}
