package index

// Posting records one document's term frequency for a term.
type Posting struct {
	DocID     string
	Frequency int
}

// PostingList is a sequence of postings ordered by ascending DocID.
type PostingList []Posting

// TermStats aggregates per-term statistics derived from the corpus.
// DocumentFrequency always equals len(Postings); CollectionFrequency is the
// total number of occurrences across the whole collection.
type TermStats struct {
	Term                string
	DocumentFrequency   int
	CollectionFrequency int64
	Postings            PostingList
}
