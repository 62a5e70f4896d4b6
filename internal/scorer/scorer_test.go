package scorer

import (
	"errors"
	"math"
	"testing"

	pkgerrors "github.com/syscred/evidence-engine/pkg/errors"
)

func TestParseModel(t *testing.T) {
	for _, s := range []string{"bm25", "tfidf", "qld"} {
		model, err := ParseModel(s)
		if err != nil {
			t.Errorf("ParseModel(%q) error = %v", s, err)
		}
		if string(model) != s {
			t.Errorf("ParseModel(%q) = %q", s, model)
		}
	}
}

func TestParseModelUnknown(t *testing.T) {
	for _, s := range []string{"", "bert", "BM25", "dirichlet"} {
		if _, err := ParseModel(s); !errors.Is(err, pkgerrors.ErrInvalidModel) {
			t.Errorf("ParseModel(%q) error = %v, want ErrInvalidModel", s, err)
		}
	}
}

// The +1 inside the logarithm guarantees IDF >= 0 even when a term appears
// in more than half the collection.
func TestBM25IDFNonNegative(t *testing.T) {
	for _, n := range []int{1, 10, 1000} {
		for df := 1; df <= n; df++ {
			if idf := BM25IDF(n, df); idf < 0 {
				t.Fatalf("BM25IDF(%d, %d) = %v, want >= 0", n, df, idf)
			}
		}
	}
}

func TestBM25IDFDecreasesWithDocFreq(t *testing.T) {
	rare := BM25IDF(1000, 1)
	common := BM25IDF(1000, 900)
	if rare <= common {
		t.Errorf("IDF(rare)=%v should exceed IDF(common)=%v", rare, common)
	}
}

func TestBM25TermZeroFrequency(t *testing.T) {
	stats := CorpusStats{DocCount: 10, AvgDocLength: 20}
	if got := BM25Term(0, 20, 2.0, stats, DefaultParams()); got != 0 {
		t.Errorf("BM25Term(tf=0) = %v, want 0", got)
	}
}

func TestBM25TermIncreasesWithFrequency(t *testing.T) {
	stats := CorpusStats{DocCount: 10, AvgDocLength: 20}
	idf := BM25IDF(10, 3)
	prev := 0.0
	for tf := 1; tf <= 5; tf++ {
		got := BM25Term(tf, 20, idf, stats, DefaultParams())
		if got <= prev {
			t.Fatalf("BM25Term(tf=%d) = %v, not increasing (prev %v)", tf, got, prev)
		}
		prev = got
	}
}

func TestBM25TermKnownValue(t *testing.T) {
	stats := CorpusStats{DocCount: 2, AvgDocLength: 2.5}
	p := DefaultParams()
	idf := BM25IDF(2, 1)
	// tf=2, |D|=3: norm = 0.9*(1-0.4+0.4*3/2.5) = 0.972
	want := idf * 2 * (p.K1 + 1) / (2 + 0.972)
	got := BM25Term(2, 3, idf, stats, p)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("BM25Term = %v, want %v", got, want)
	}
}

func TestTFIDFTermEdgeCases(t *testing.T) {
	stats := CorpusStats{DocCount: 10}
	if got := TFIDFTerm(0, 10, 3, stats); got != 0 {
		t.Errorf("TFIDFTerm(tf=0) = %v, want 0", got)
	}
	if got := TFIDFTerm(3, 10, 0, stats); got != 0 {
		t.Errorf("TFIDFTerm(df=0) = %v, want 0", got)
	}
}

func TestTFIDFTermKnownValue(t *testing.T) {
	stats := CorpusStats{DocCount: 100}
	// tf=4, df=10, |D|=16: (1+ln 4) * ln(10) / 4
	want := (1 + math.Log(4)) * math.Log(10) / 4
	got := TFIDFTerm(4, 16, 10, stats)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("TFIDFTerm = %v, want %v", got, want)
	}
}

func TestQLDTermBackgroundSmoothing(t *testing.T) {
	stats := CorpusStats{DocCount: 10, CollectionLength: 1000}
	p := DefaultParams()

	// A term absent from the document still contributes the smoothed
	// collection probability.
	absent := QLDTerm(0, 50, 20, stats, p)
	want := math.Log((p.Mu * 20 / 1000) / (50 + p.Mu))
	if math.Abs(absent-want) > 1e-9 {
		t.Errorf("QLDTerm(tf=0) = %v, want %v", absent, want)
	}

	present := QLDTerm(5, 50, 20, stats, p)
	if present <= absent {
		t.Errorf("QLDTerm(tf=5)=%v should exceed QLDTerm(tf=0)=%v", present, absent)
	}
}

func TestQLDTermUnseenTerm(t *testing.T) {
	stats := CorpusStats{DocCount: 10, CollectionLength: 1000}
	if got := QLDTerm(0, 50, 0, stats, DefaultParams()); got != 0 {
		t.Errorf("QLDTerm(cf=0) = %v, want 0", got)
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	if p.K1 != 0.9 || p.B != 0.4 || p.Mu != 2000 {
		t.Errorf("DefaultParams() = %+v", p)
	}
}
