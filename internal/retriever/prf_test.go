package retriever

import (
	"context"
	"reflect"
	"testing"

	"github.com/syscred/evidence-engine/internal/corpus"
	"github.com/syscred/evidence-engine/internal/scorer"
)

func prfCorpus() []corpus.RawDocument {
	return []corpus.RawDocument{
		{ID: "d1", Text: "climate coral coral reef"},
		{ID: "d2", Text: "climate coral reef"},
		{ID: "d3", Text: "desert storm"},
	}
}

func TestPRFExpandsWithTopDocTerms(t *testing.T) {
	e := newTestEngine(t, prfCorpus())
	res, err := e.Retrieve(context.Background(), "climate", Options{K: 10, Model: scorer.ModelBM25, UsePRF: true})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	// coral appears 3 times across the pseudo-relevant docs, reef twice.
	want := []string{"coral", "reef"}
	if !reflect.DeepEqual(res.ExpandedTerms, want) {
		t.Errorf("ExpandedTerms = %v, want %v", res.ExpandedTerms, want)
	}
}

func TestPRFNeverReAddsQueryTerms(t *testing.T) {
	e := newTestEngine(t, prfCorpus())
	res, err := e.Retrieve(context.Background(), "climate coral", Options{K: 10, Model: scorer.ModelBM25, UsePRF: true})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, term := range res.ExpandedTerms {
		if term == "climate" || term == "coral" {
			t.Errorf("expansion re-added query term %q", term)
		}
	}
}

func TestPRFTermFrequencyTieBrokenAlphabetically(t *testing.T) {
	e := newTestEngine(t, []corpus.RawDocument{
		{ID: "d1", Text: "climate zebra apple"},
		{ID: "d2", Text: "desert storm"},
	})
	res, err := e.Retrieve(context.Background(), "climate", Options{K: 10, Model: scorer.ModelBM25, UsePRF: true})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	// zebra and apple both occur once; alphabetical order decides.
	want := []string{"apple", "zebra"}
	if !reflect.DeepEqual(res.ExpandedTerms, want) {
		t.Errorf("ExpandedTerms = %v, want %v", res.ExpandedTerms, want)
	}
}

func TestPRFLimitsExpansionTerms(t *testing.T) {
	e := newTestEngine(t, []corpus.RawDocument{
		{ID: "d1", Text: "climate alpha bravo delta echo foxtrot golf hotel india juliet kilo lima mike"},
		{ID: "d2", Text: "desert storm"},
	})
	res, err := e.Retrieve(context.Background(), "climate", Options{K: 10, Model: scorer.ModelBM25, UsePRF: true})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.ExpandedTerms) != e.cfg.PRFTerms {
		t.Errorf("len(ExpandedTerms) = %d, want %d", len(res.ExpandedTerms), e.cfg.PRFTerms)
	}
}

func TestPRFKeepsOrderingInvariant(t *testing.T) {
	e := newTestEngine(t, prfCorpus())
	res, err := e.Retrieve(context.Background(), "climate", Options{K: 10, Model: scorer.ModelBM25, UsePRF: true})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for i := 1; i < len(res.Results); i++ {
		prev, cur := res.Results[i-1], res.Results[i]
		if prev.Score < cur.Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
		if prev.Score == cur.Score && prev.DocID >= cur.DocID {
			t.Errorf("tie at %d not broken by ascending doc id", i)
		}
	}
}

func TestPRFNoExpansionWithoutResults(t *testing.T) {
	e := newTestEngine(t, prfCorpus())
	res, err := e.Retrieve(context.Background(), "zebra", Options{K: 10, Model: scorer.ModelBM25, UsePRF: true})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.ExpandedTerms) != 0 || len(res.Results) != 0 {
		t.Errorf("expected no expansion and no results, got %+v", res)
	}
}

func TestWithExpansionWeights(t *testing.T) {
	q := newQuery("climate ocean", []string{"climate", "ocean"})
	expanded := q.withExpansion([]string{"coral", "ocean"}, 0.5)

	want := []string{"climate", "ocean", "coral"}
	if !reflect.DeepEqual(expanded.Terms, want) {
		t.Errorf("Terms = %v, want %v", expanded.Terms, want)
	}
	if expanded.Weights["climate"] != 1.0 || expanded.Weights["ocean"] != 1.0 {
		t.Errorf("original weights changed: %v", expanded.Weights)
	}
	if expanded.Weights["coral"] != 0.5 {
		t.Errorf("expansion weight = %v, want 0.5", expanded.Weights["coral"])
	}
	// The original query value is untouched.
	if len(q.Terms) != 2 || q.Weights["coral"] != 0 {
		t.Errorf("source query mutated: %+v", q)
	}
}
