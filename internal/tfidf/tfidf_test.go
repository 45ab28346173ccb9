package tfidf

import (
	"math"
	"testing"
)

func TestFitTransform_RowPerDocument(t *testing.T) {
	corpus := []string{
		"the mitochondria is the powerhouse of the cell",
		"cells divide through mitosis",
		"",
	}
	v := NewVectorizer(0)
	vectors := v.FitTransform(corpus)
	if len(vectors) != len(corpus) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(corpus))
	}
	if len(vectors[2]) != 0 {
		t.Errorf("empty document should map to an empty vector, got %d entries", len(vectors[2]))
	}
}

func TestTransform_Normalized(t *testing.T) {
	v := NewVectorizer(0)
	v.Fit([]string{"alpha beta gamma", "beta gamma delta", "gamma delta epsilon"})

	vec := v.Transform("alpha beta beta gamma")
	var sum float64
	for _, e := range vec {
		sum += e.Weight * e.Weight
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-9 {
		t.Errorf("vector norm = %f, want 1", math.Sqrt(sum))
	}
	for i := 1; i < len(vec); i++ {
		if vec[i].Index <= vec[i-1].Index {
			t.Errorf("entries not sorted by index: %v", vec)
		}
	}
}

func TestTransform_UnknownTermsIgnored(t *testing.T) {
	v := NewVectorizer(0)
	v.Fit([]string{"alpha beta", "beta gamma"})
	if vec := v.Transform("zeta theta"); len(vec) != 0 {
		t.Errorf("got %v, want empty vector", vec)
	}
}

func TestCosine_SelfSimilarity(t *testing.T) {
	v := NewVectorizer(0)
	vectors := v.FitTransform([]string{"photosynthesis converts light", "light travels fast"})

	if got := Cosine(vectors[0], vectors[0]); math.Abs(got-1) > 1e-9 {
		t.Errorf("self cosine = %f, want 1", got)
	}
}

func TestCosine_RanksSharedTermsHigher(t *testing.T) {
	corpus := []string{
		"the krebs cycle produces ATP in the matrix",
		"paris is the capital of france",
	}
	v := NewVectorizer(0)
	vectors := v.FitTransform(corpus)

	query := v.Transform("how does the krebs cycle produce ATP")
	onTopic := Cosine(query, vectors[0])
	offTopic := Cosine(query, vectors[1])
	if onTopic <= offTopic {
		t.Errorf("on-topic score %f not greater than off-topic %f", onTopic, offTopic)
	}
	if onTopic <= 0 || onTopic > 1 {
		t.Errorf("score %f outside (0, 1]", onTopic)
	}
}

func TestCosine_EmptyVectors(t *testing.T) {
	if got := Cosine(nil, nil); got != 0 {
		t.Errorf("got %f, want 0", got)
	}
	if got := Cosine(Vector{{Index: 0, Weight: 1}}, nil); got != 0 {
		t.Errorf("got %f, want 0", got)
	}
}

func TestFit_FeatureCap(t *testing.T) {
	corpus := []string{
		"aa bb cc dd ee",
		"aa bb cc",
		"aa bb",
		"aa",
	}
	v := NewVectorizer(3)
	v.Fit(corpus)
	if len(v.vocabulary) != 3 {
		t.Fatalf("vocabulary size = %d, want 3", len(v.vocabulary))
	}
	// The cap keeps the most frequent terms; "aa" appears in every document.
	if _, ok := v.vocabulary["aa"]; !ok {
		t.Errorf("most frequent term missing from capped vocabulary: %v", v.vocabulary)
	}
}

func TestFit_BigramsInVocabulary(t *testing.T) {
	v := NewVectorizer(0)
	v.Fit([]string{"cell membrane structure", "membrane structure basics"})
	if _, ok := v.vocabulary["cell membrane"]; !ok {
		t.Errorf("expected bigram \"cell membrane\" in vocabulary")
	}
}

func TestFit_NoTokens(t *testing.T) {
	v := NewVectorizer(0)
	v.Fit([]string{"!!!", "???"})
	if len(v.vocabulary) != 0 {
		t.Errorf("vocabulary = %v, want empty", v.vocabulary)
	}
	if vec := v.Transform("anything"); len(vec) != 0 {
		t.Errorf("got %v, want empty vector", vec)
	}
}
