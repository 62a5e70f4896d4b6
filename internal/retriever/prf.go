package retriever

import "sort"

// prfTermWeight is the weight assigned to expansion terms merged into the
// query. Original query terms keep weight 1.0.
const prfTermWeight = 0.5

// expandQuery implements one round of pseudo-relevance feedback: the top
// PRFTopDocs documents from the first pass are assumed relevant, their
// terms are tallied by raw frequency, and the PRFTerms highest-frequency
// terms not already in the query are returned. Frequency ties are broken
// alphabetically so expansion is deterministic.
func (e *Engine) expandQuery(s *snapshot, q Query, ranked []ScoredResult) []string {
	topN := e.cfg.PRFTopDocs
	if topN > len(ranked) {
		topN = len(ranked)
	}

	freqs := make(map[string]int)
	for _, r := range ranked[:topN] {
		doc, err := s.store.Get(r.DocID)
		if err != nil {
			// Snapshot store and ranked list come from the same build, so
			// a miss here means a programming error upstream.
			e.logger.Error("pseudo-relevant document missing from store", "doc_id", r.DocID, "error", err)
			continue
		}
		for _, term := range doc.Tokens {
			freqs[term]++
		}
	}
	// Terms already in the query are not re-added; expansion only
	// introduces new evidence vocabulary.
	for _, term := range q.Terms {
		delete(freqs, term)
	}
	if len(freqs) == 0 {
		return nil
	}

	type termFreq struct {
		term string
		freq int
	}
	tallies := make([]termFreq, 0, len(freqs))
	for term, freq := range freqs {
		tallies = append(tallies, termFreq{term, freq})
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].freq != tallies[j].freq {
			return tallies[i].freq > tallies[j].freq
		}
		return tallies[i].term < tallies[j].term
	})

	limit := e.cfg.PRFTerms
	if limit > len(tallies) {
		limit = len(tallies)
	}
	expansion := make([]string, 0, limit)
	for _, tf := range tallies[:limit] {
		expansion = append(expansion, tf.term)
	}
	return expansion
}

// withExpansion returns a copy of q with the expansion terms appended at
// the given weight. Exactly one expansion round is ever applied.
func (q Query) withExpansion(expansion []string, weight float64) Query {
	out := Query{
		RawText: q.RawText,
		Terms:   make([]string, 0, len(q.Terms)+len(expansion)),
		Weights: make(map[string]float64, len(q.Terms)+len(expansion)),
	}
	out.Terms = append(out.Terms, q.Terms...)
	for term, w := range q.Weights {
		out.Weights[term] = w
	}
	for _, term := range expansion {
		if _, exists := out.Weights[term]; exists {
			continue
		}
		out.Terms = append(out.Terms, term)
		out.Weights[term] = weight
	}
	return out
}
