// Package retriever orchestrates the retrieval pipeline: query
// normalisation, posting-list lookup, model scoring, optional
// pseudo-relevance feedback, and top-k selection. An Engine owns an
// immutable {store, index} snapshot swapped atomically on reindex, so any
// number of retrievals may run concurrently with a rebuild and each one
// observes a single self-consistent index.
package retriever

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/syscred/evidence-engine/internal/analyzer"
	"github.com/syscred/evidence-engine/internal/corpus"
	"github.com/syscred/evidence-engine/internal/index"
	"github.com/syscred/evidence-engine/internal/scorer"
	"github.com/syscred/evidence-engine/pkg/errors"
)

// Config carries the scoring and expansion parameters for an Engine.
type Config struct {
	Params     scorer.Params
	PRFTopDocs int
	PRFTerms   int
}

// DefaultConfig returns the engine defaults: BM25 k1=0.9 b=0.4, mu=2000,
// PRF over the top 3 documents with 10 expansion terms.
func DefaultConfig() Config {
	return Config{
		Params:     scorer.DefaultParams(),
		PRFTopDocs: 3,
		PRFTerms:   10,
	}
}

// Options selects the behaviour of a single Retrieve call.
type Options struct {
	K      int
	Model  scorer.Model
	UsePRF bool
}

// ScoredResult is one ranked evidence document. Rank is 1-based and
// increases as Score decreases; equal scores are ordered by ascending
// DocID.
type ScoredResult struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Result is the outcome of one retrieval call.
type Result struct {
	Query           string         `json:"query"`
	Model           scorer.Model   `json:"model"`
	Results         []ScoredResult `json:"results"`
	TotalCandidates int            `json:"total_candidates"`
	ExpandedTerms   []string       `json:"expanded_terms,omitempty"`
}

// Query is a normalised query: unique terms in first-occurrence order with
// per-term weights. Weights are 1.0 unless PRF has merged expansion terms.
type Query struct {
	RawText string
	Terms   []string
	Weights map[string]float64
}

func newQuery(raw string, terms []string) Query {
	q := Query{
		RawText: raw,
		Terms:   make([]string, 0, len(terms)),
		Weights: make(map[string]float64, len(terms)),
	}
	for _, t := range terms {
		if _, seen := q.Weights[t]; seen {
			continue
		}
		q.Terms = append(q.Terms, t)
		q.Weights[t] = 1.0
	}
	return q
}

// snapshot pairs a document store with the index built from it. Both are
// immutable; the pair is replaced wholesale on reindex.
type snapshot struct {
	store *corpus.Store
	idx   *index.Index
}

// Engine is the externally visible retrieval entry point.
type Engine struct {
	cfg    Config
	snap   atomic.Pointer[snapshot]
	logger *slog.Logger
}

// New creates an Engine with no corpus loaded. Retrievals against an empty
// engine return empty results.
func New(cfg Config) *Engine {
	if cfg.PRFTopDocs <= 0 {
		cfg.PRFTopDocs = 3
	}
	if cfg.PRFTerms <= 0 {
		cfg.PRFTerms = 10
	}
	return &Engine{
		cfg:    cfg,
		logger: slog.Default().With("component", "retriever"),
	}
}

// SetCorpus builds a fresh index over store and swaps it in atomically.
// In-flight retrievals keep the snapshot they started with.
func (e *Engine) SetCorpus(store *corpus.Store) {
	start := time.Now()
	idx := index.Build(store)
	e.snap.Store(&snapshot{store: store, idx: idx})
	e.logger.Info("index swapped",
		"docs", idx.DocCount(),
		"terms", idx.TermCount(),
		"avg_doc_length", idx.AvgDocLength(),
		"build_ms", time.Since(start).Milliseconds(),
	)
}

// DocCount returns the document count of the active snapshot.
func (e *Engine) DocCount() int {
	if s := e.snap.Load(); s != nil {
		return s.idx.DocCount()
	}
	return 0
}

// TermCount returns the distinct term count of the active snapshot.
func (e *Engine) TermCount() int {
	if s := e.snap.Load(); s != nil {
		return s.idx.TermCount()
	}
	return 0
}

// Document returns the stored document for an id from the active snapshot.
func (e *Engine) Document(id string) (corpus.Document, error) {
	s := e.snap.Load()
	if s == nil {
		return corpus.Document{}, errors.Newf(errors.ErrDocumentNotFound, 404, "no corpus loaded")
	}
	return s.store.Get(id)
}

// Retrieve runs the full pipeline for queryText and returns at most opts.K
// results. An empty corpus, an empty query, or a query with no term overlap
// all yield an empty result and a nil error; only invalid arguments fail.
func (e *Engine) Retrieve(ctx context.Context, queryText string, opts Options) (*Result, error) {
	if opts.K <= 0 {
		return nil, errors.Newf(errors.ErrInvalidK, 400, "k=%d", opts.K)
	}
	if _, err := scorer.ParseModel(string(opts.Model)); err != nil {
		return nil, err
	}
	res := &Result{
		Query:   queryText,
		Model:   opts.Model,
		Results: []ScoredResult{},
	}

	s := e.snap.Load()
	if s == nil || s.idx.DocCount() == 0 {
		return res, nil
	}
	terms := analyzer.Normalize(queryText)
	if len(terms) == 0 {
		return res, nil
	}
	query := newQuery(queryText, terms)

	ranked := e.score(s, query, opts.Model)

	if opts.UsePRF && len(ranked) > 0 {
		expansion := e.expandQuery(s, query, ranked)
		if len(expansion) > 0 {
			expanded := query.withExpansion(expansion, prfTermWeight)
			ranked = e.score(s, expanded, opts.Model)
			res.ExpandedTerms = expansion
		}
	}

	res.TotalCandidates = len(ranked)
	if len(ranked) > opts.K {
		ranked = ranked[:opts.K]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	res.Results = ranked

	if err := ctx.Err(); err != nil {
		return nil, errors.Newf(errors.ErrTimeout, 503, "retrieve cancelled: %v", err)
	}
	return res, nil
}

// score ranks every document sharing at least one term with the query.
// Documents with zero overlap are never visited, which bounds the cost to
// the union of the relevant posting lists.
func (e *Engine) score(s *snapshot, q Query, model scorer.Model) []ScoredResult {
	stats := scorer.CorpusStats{
		DocCount:         s.idx.DocCount(),
		AvgDocLength:     s.idx.AvgDocLength(),
		CollectionLength: s.idx.CollectionLength(),
	}

	// Terms unknown to the index contribute nothing under any model.
	matched := make([]string, 0, len(q.Terms))
	for _, term := range q.Terms {
		if s.idx.DocumentFrequency(term) > 0 {
			matched = append(matched, term)
		}
	}
	if len(matched) == 0 {
		return []ScoredResult{}
	}

	// Candidate set: union of posting lists, with per-document term
	// frequencies for the matched query terms.
	candidates := make(map[string]map[string]int)
	for _, term := range matched {
		for _, p := range s.idx.PostingsFor(term) {
			tfs, ok := candidates[p.DocID]
			if !ok {
				tfs = make(map[string]int, len(matched))
				candidates[p.DocID] = tfs
			}
			tfs[term] = p.Frequency
		}
	}

	results := make([]ScoredResult, 0, len(candidates))
	for docID, tfs := range candidates {
		docLen := s.idx.DocLength(docID)
		var score float64
		for _, term := range matched {
			w := q.Weights[term]
			tf := tfs[term]
			switch model {
			case scorer.ModelBM25:
				idf := scorer.BM25IDF(stats.DocCount, s.idx.DocumentFrequency(term))
				score += w * scorer.BM25Term(tf, docLen, idf, stats, e.cfg.Params)
			case scorer.ModelTFIDF:
				score += w * scorer.TFIDFTerm(tf, docLen, s.idx.DocumentFrequency(term), stats)
			case scorer.ModelQLD:
				// The smoothed background probability applies even when
				// tf is zero, so all candidates stay comparable.
				score += w * scorer.QLDTerm(tf, docLen, s.idx.CollectionFrequency(term), stats, e.cfg.Params)
			}
		}
		results = append(results, ScoredResult{
			DocID: docID,
			Score: math.Round(score*10000) / 10000,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
	return results
}
