// Package scorer implements the three supported relevance models as pure
// functions over term statistics: BM25, a simpler TF-IDF baseline, and
// query-likelihood with Dirichlet smoothing (QLD). The model set is closed;
// callers select one via the Model enum.
package scorer

import (
	"math"

	"github.com/syscred/evidence-engine/pkg/errors"
)

// Model selects a relevance scoring function.
type Model string

const (
	ModelBM25  Model = "bm25"
	ModelTFIDF Model = "tfidf"
	ModelQLD   Model = "qld"
)

// ParseModel validates a model selector string.
func ParseModel(s string) (Model, error) {
	switch Model(s) {
	case ModelBM25, ModelTFIDF, ModelQLD:
		return Model(s), nil
	default:
		return "", errors.Newf(errors.ErrInvalidModel, 400, "model %q (want bm25, tfidf, or qld)", s)
	}
}

// Params holds the tunable scoring parameters. K1 and B apply to BM25,
// Mu to QLD.
type Params struct {
	K1 float64
	B  float64
	Mu float64
}

// DefaultParams returns the parameters tuned on the AP88-90 collection.
func DefaultParams() Params {
	return Params{K1: 0.9, B: 0.4, Mu: 2000}
}

// CorpusStats carries the global statistics every model needs.
type CorpusStats struct {
	DocCount         int
	AvgDocLength     float64
	CollectionLength int64
}

// BM25IDF computes ln((N - df + 0.5)/(df + 0.5) + 1). The +1 inside the
// logarithm keeps the result non-negative for every df <= N.
func BM25IDF(docCount, docFreq int) float64 {
	numerator := float64(docCount) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// BM25Term returns one term's BM25 contribution for a document with term
// frequency tf and length docLen. A term absent from the document (tf=0)
// contributes 0.
func BM25Term(tf, docLen int, idf float64, stats CorpusStats, p Params) float64 {
	if tf == 0 || stats.AvgDocLength == 0 {
		return 0
	}
	f := float64(tf)
	norm := p.K1 * (1 - p.B + p.B*float64(docLen)/stats.AvgDocLength)
	return idf * f * (p.K1 + 1) / (f + norm)
}

// TFIDFTerm returns one term's contribution under the TF-IDF baseline:
// a log-scaled term frequency weighted by ln(N/df) and damped by the square
// root of the document length. This is deliberately the simpler model, kept
// as a reference point for BM25 comparisons.
func TFIDFTerm(tf, docLen, docFreq int, stats CorpusStats) float64 {
	if tf == 0 || docFreq == 0 || docLen == 0 {
		return 0
	}
	idf := math.Log(float64(stats.DocCount) / float64(docFreq))
	tfw := 1 + math.Log(float64(tf))
	return tfw * idf / math.Sqrt(float64(docLen))
}

// QLDTerm returns one term's log-likelihood contribution under Dirichlet
// smoothing: log((tf + mu*P(t|C)) / (|D| + mu)). Unlike BM25, a term absent
// from the document still contributes its smoothed background probability,
// so candidates are comparable. Terms absent from the whole collection
// (collectionFreq=0) must be skipped by the caller.
func QLDTerm(tf, docLen int, collectionFreq int64, stats CorpusStats, p Params) float64 {
	if stats.CollectionLength == 0 || collectionFreq == 0 {
		return 0
	}
	pc := float64(collectionFreq) / float64(stats.CollectionLength)
	return math.Log((float64(tf) + p.Mu*pc) / (float64(docLen) + p.Mu))
}
