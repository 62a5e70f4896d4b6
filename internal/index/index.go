// Package index builds an immutable inverted index over a corpus.Store.
// The build is a one-shot batch operation: per-document term frequencies
// are computed in parallel, merged, and the final posting lists are sorted
// by ascending document id so the result is reproducible regardless of
// parallelism. Lookups after Build require no locking.
package index

import (
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/syscred/evidence-engine/internal/corpus"
)

// Index is an immutable inverted index plus global corpus statistics.
type Index struct {
	terms         map[string]*TermStats
	docLengths    map[string]int
	docCount      int
	avgDocLength  float64
	collectionLen int64
}

// docPostings is one document's contribution to the index: its term
// frequency map keyed by term.
type docPostings struct {
	docID string
	freqs map[string]int
}

// Build constructs an Index from an already-normalised Store. Complexity is
// O(total tokens) plus the final per-term sort of posting lists.
func Build(store *corpus.Store) *Index {
	docs := store.All()
	idx := &Index{
		terms:      make(map[string]*TermStats),
		docLengths: make(map[string]int, len(docs)),
		docCount:   len(docs),
	}
	if len(docs) == 0 {
		return idx
	}

	contributions := make([]docPostings, len(docs))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range docs {
		i := i
		g.Go(func() error {
			doc := docs[i]
			freqs := make(map[string]int, len(doc.Tokens))
			for _, term := range doc.Tokens {
				freqs[term]++
			}
			contributions[i] = docPostings{docID: doc.ID, freqs: freqs}
			return nil
		})
	}
	// Workers never return errors; Wait is only a join point.
	_ = g.Wait()

	for i, dp := range contributions {
		idx.docLengths[dp.docID] = docs[i].Length
		idx.collectionLen += int64(docs[i].Length)
		for term, tf := range dp.freqs {
			ts, ok := idx.terms[term]
			if !ok {
				ts = &TermStats{Term: term}
				idx.terms[term] = ts
			}
			ts.Postings = append(ts.Postings, Posting{DocID: dp.docID, Frequency: tf})
			ts.CollectionFrequency += int64(tf)
		}
	}
	for _, ts := range idx.terms {
		sort.Slice(ts.Postings, func(a, b int) bool {
			return ts.Postings[a].DocID < ts.Postings[b].DocID
		})
		ts.DocumentFrequency = len(ts.Postings)
	}
	if idx.docCount > 0 {
		idx.avgDocLength = float64(idx.collectionLen) / float64(idx.docCount)
	}
	return idx
}

// PostingsFor returns the posting list for term, ordered by ascending doc
// id. Unknown terms yield an empty list; absence is a normal outcome, not
// an error.
func (idx *Index) PostingsFor(term string) PostingList {
	if ts, ok := idx.terms[term]; ok {
		return ts.Postings
	}
	return nil
}

// DocumentFrequency returns the number of documents containing term.
func (idx *Index) DocumentFrequency(term string) int {
	if ts, ok := idx.terms[term]; ok {
		return ts.DocumentFrequency
	}
	return 0
}

// CollectionFrequency returns the total occurrences of term across the
// collection.
func (idx *Index) CollectionFrequency(term string) int64 {
	if ts, ok := idx.terms[term]; ok {
		return ts.CollectionFrequency
	}
	return 0
}

// DocCount returns the number of indexed documents.
func (idx *Index) DocCount() int {
	return idx.docCount
}

// AvgDocLength returns the mean post-normalisation document length.
func (idx *Index) AvgDocLength() float64 {
	return idx.avgDocLength
}

// CollectionLength returns the total token count across all documents.
func (idx *Index) CollectionLength() int64 {
	return idx.collectionLen
}

// DocLength returns the post-normalisation length of the given document,
// or 0 if the document is not indexed.
func (idx *Index) DocLength(docID string) int {
	return idx.docLengths[docID]
}

// TermCount returns the number of distinct terms in the index.
func (idx *Index) TermCount() int {
	return len(idx.terms)
}
