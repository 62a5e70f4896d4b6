package retriever

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/syscred/evidence-engine/internal/corpus"
	"github.com/syscred/evidence-engine/internal/scorer"
	pkgerrors "github.com/syscred/evidence-engine/pkg/errors"
)

func newTestEngine(t *testing.T, raw []corpus.RawDocument) *Engine {
	t.Helper()
	store, err := corpus.Build(raw)
	if err != nil {
		t.Fatalf("corpus.Build() error = %v", err)
	}
	e := New(DefaultConfig())
	e.SetCorpus(store)
	return e
}

func climateCorpus() []corpus.RawDocument {
	return []corpus.RawDocument{
		{ID: "AP880101-0001", Text: "climate climate ocean"},
		{ID: "AP880101-0002", Text: "climate ocean"},
		{ID: "AP880102-0001", Text: "desert storm"},
	}
}

func TestRetrieveRanking(t *testing.T) {
	e := newTestEngine(t, climateCorpus())

	res, err := e.Retrieve(context.Background(), "climate", Options{K: 10, Model: scorer.ModelBM25})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(res.Results))
	}
	if res.Results[0].DocID != "AP880101-0001" {
		t.Errorf("rank 1 = %s, want AP880101-0001 (tf=2)", res.Results[0].DocID)
	}
	if res.TotalCandidates != 2 {
		t.Errorf("TotalCandidates = %d, want 2", res.TotalCandidates)
	}
	for i, r := range res.Results {
		if r.Rank != i+1 {
			t.Errorf("Results[%d].Rank = %d, want %d", i, r.Rank, i+1)
		}
		if i > 0 && res.Results[i-1].Score < r.Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
}

func TestRetrieveDeterminism(t *testing.T) {
	e := newTestEngine(t, climateCorpus())
	opts := Options{K: 10, Model: scorer.ModelBM25}

	first, err := e.Retrieve(context.Background(), "climate ocean", opts)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := e.Retrieve(context.Background(), "climate ocean", opts)
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if !reflect.DeepEqual(first.Results, again.Results) {
			t.Fatalf("run %d: results differ:\n%v\n%v", i, first.Results, again.Results)
		}
	}
}

func TestRetrieveTieBreakByDocID(t *testing.T) {
	e := newTestEngine(t, []corpus.RawDocument{
		{ID: "b-doc", Text: "ocean"},
		{ID: "a-doc", Text: "ocean"},
	})
	for _, model := range []scorer.Model{scorer.ModelBM25, scorer.ModelTFIDF, scorer.ModelQLD} {
		res, err := e.Retrieve(context.Background(), "ocean", Options{K: 10, Model: model})
		if err != nil {
			t.Fatalf("Retrieve(%s) error = %v", model, err)
		}
		if len(res.Results) != 2 {
			t.Fatalf("%s: len(Results) = %d, want 2", model, len(res.Results))
		}
		if res.Results[0].Score != res.Results[1].Score {
			t.Fatalf("%s: expected equal scores, got %v vs %v", model, res.Results[0].Score, res.Results[1].Score)
		}
		if res.Results[0].DocID != "a-doc" {
			t.Errorf("%s: tie not broken by ascending doc id: %v", model, res.Results)
		}
	}
}

func TestRetrieveZeroOverlap(t *testing.T) {
	e := newTestEngine(t, climateCorpus())
	res, err := e.Retrieve(context.Background(), "zebra giraffe", Options{K: 10, Model: scorer.ModelBM25})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.Results) != 0 || res.TotalCandidates != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	e := newTestEngine(t, climateCorpus())
	for _, q := range []string{"", "   ", "the of and"} {
		res, err := e.Retrieve(context.Background(), q, Options{K: 10, Model: scorer.ModelBM25})
		if err != nil {
			t.Fatalf("Retrieve(%q) error = %v", q, err)
		}
		if len(res.Results) != 0 {
			t.Errorf("Retrieve(%q) = %v, want empty", q, res.Results)
		}
	}
}

func TestRetrieveEmptyEngine(t *testing.T) {
	e := New(DefaultConfig())
	res, err := e.Retrieve(context.Background(), "climate", Options{K: 10, Model: scorer.ModelBM25})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.Results) != 0 {
		t.Errorf("expected empty result on empty engine, got %v", res.Results)
	}
}

func TestRetrieveInvalidK(t *testing.T) {
	e := newTestEngine(t, climateCorpus())
	for _, k := range []int{0, -1} {
		_, err := e.Retrieve(context.Background(), "climate", Options{K: k, Model: scorer.ModelBM25})
		if !errors.Is(err, pkgerrors.ErrInvalidK) {
			t.Errorf("Retrieve(k=%d) error = %v, want ErrInvalidK", k, err)
		}
	}
}

func TestRetrieveInvalidModel(t *testing.T) {
	e := newTestEngine(t, climateCorpus())
	_, err := e.Retrieve(context.Background(), "climate", Options{K: 10, Model: "bert"})
	if !errors.Is(err, pkgerrors.ErrInvalidModel) {
		t.Errorf("error = %v, want ErrInvalidModel", err)
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	raw := make([]corpus.RawDocument, 0, 20)
	for i := 0; i < 20; i++ {
		raw = append(raw, corpus.RawDocument{
			ID:   fmt.Sprintf("doc-%02d", i),
			Text: strings.Repeat("ocean ", i+1),
		})
	}
	e := newTestEngine(t, raw)

	res, err := e.Retrieve(context.Background(), "ocean", Options{K: 5, Model: scorer.ModelBM25})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.Results) != 5 {
		t.Errorf("len(Results) = %d, want 5", len(res.Results))
	}
	if res.TotalCandidates != 20 {
		t.Errorf("TotalCandidates = %d, want 20", res.TotalCandidates)
	}
	if res.Results[4].Rank != 5 {
		t.Errorf("last rank = %d, want 5", res.Results[4].Rank)
	}
}

func TestRetrieveScoresRounded(t *testing.T) {
	e := newTestEngine(t, climateCorpus())
	res, err := e.Retrieve(context.Background(), "climate ocean", Options{K: 10, Model: scorer.ModelBM25})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	for _, r := range res.Results {
		scaled := r.Score * 10000
		if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Errorf("score %v not rounded to 4 decimals", r.Score)
		}
	}
}

func TestRetrieveCancelledContext(t *testing.T) {
	e := newTestEngine(t, climateCorpus())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Retrieve(ctx, "climate", Options{K: 10, Model: scorer.ModelBM25})
	if !errors.Is(err, pkgerrors.ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}

func TestRetrieveQLDIncludesAbsentTerms(t *testing.T) {
	// Under QLD a candidate matching only one of two query terms still pays
	// the background cost of the other, so a document matching both terms
	// must outrank one matching a single term at the same length.
	e := newTestEngine(t, []corpus.RawDocument{
		{ID: "both", Text: "climate ocean"},
		{ID: "single", Text: "climate desert"},
	})
	res, err := e.Retrieve(context.Background(), "climate ocean", Options{K: 10, Model: scorer.ModelQLD})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(res.Results))
	}
	if res.Results[0].DocID != "both" {
		t.Errorf("rank 1 = %s, want both", res.Results[0].DocID)
	}
}

func TestDocumentLookup(t *testing.T) {
	e := newTestEngine(t, climateCorpus())
	doc, err := e.Document("AP880102-0001")
	if err != nil {
		t.Fatalf("Document() error = %v", err)
	}
	if doc.RawText != "desert storm" {
		t.Errorf("RawText = %q", doc.RawText)
	}
	if _, err := e.Document("missing"); !errors.Is(err, pkgerrors.ErrDocumentNotFound) {
		t.Errorf("error = %v, want ErrDocumentNotFound", err)
	}
}

// Concurrent retrievals racing an index swap must each observe exactly one
// corpus generation, never a mix.
func TestRebuildIsolation(t *testing.T) {
	corpusFor := func(prefix string) *corpus.Store {
		raw := []corpus.RawDocument{
			{ID: prefix + "-1", Text: "ocean climate"},
			{ID: prefix + "-2", Text: "ocean desert"},
		}
		store, err := corpus.Build(raw)
		if err != nil {
			t.Fatalf("corpus.Build() error = %v", err)
		}
		return store
	}
	storeA := corpusFor("a")
	storeB := corpusFor("b")

	e := New(DefaultConfig())
	e.SetCorpus(storeA)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				res, err := e.Retrieve(context.Background(), "ocean", Options{K: 10, Model: scorer.ModelBM25})
				if err != nil {
					t.Errorf("Retrieve() error = %v", err)
					return
				}
				if len(res.Results) == 0 {
					t.Error("expected results from every snapshot")
					return
				}
				prefix := res.Results[0].DocID[:1]
				for _, r := range res.Results {
					if !strings.HasPrefix(r.DocID, prefix) {
						t.Errorf("mixed snapshot observed: %v", res.Results)
						return
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			e.SetCorpus(storeB)
		} else {
			e.SetCorpus(storeA)
		}
	}
	close(done)
	wg.Wait()
}
