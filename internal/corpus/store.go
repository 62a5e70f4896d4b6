// Package corpus holds the document collection behind the retrieval engine.
// A Store is built once from raw documents and is immutable afterwards;
// every document is normalised exactly once at build time.
package corpus

import (
	"sort"

	"github.com/syscred/evidence-engine/internal/analyzer"
	"github.com/syscred/evidence-engine/pkg/errors"
)

// RawDocument is the input shape supplied by a dataset loader.
type RawDocument struct {
	ID   string
	Text string
}

// Document is a corpus entry after normalisation. Length is the token count
// after stop-word removal and stemming, used by length-normalised scorers.
type Document struct {
	ID      string
	RawText string
	Tokens  []string
	Length  int
}

// Store is an immutable, ordered document collection.
type Store struct {
	docs  []Document
	byID  map[string]int
	total int64
}

// Build normalises every input document and constructs a Store. It fails
// with errors.ErrDuplicateDocumentID if two inputs share an id; on failure
// no partially built Store is returned.
func Build(raw []RawDocument) (*Store, error) {
	s := &Store{
		docs: make([]Document, 0, len(raw)),
		byID: make(map[string]int, len(raw)),
	}
	for _, rd := range raw {
		if _, exists := s.byID[rd.ID]; exists {
			return nil, errors.Newf(errors.ErrDuplicateDocumentID, 409, "document %q supplied twice", rd.ID)
		}
		tokens := analyzer.Normalize(rd.Text)
		s.byID[rd.ID] = len(s.docs)
		s.docs = append(s.docs, Document{
			ID:      rd.ID,
			RawText: rd.Text,
			Tokens:  tokens,
			Length:  len(tokens),
		})
		s.total += int64(len(tokens))
	}
	return s, nil
}

// Get returns the document with the given id, or errors.ErrDocumentNotFound.
func (s *Store) Get(id string) (Document, error) {
	i, ok := s.byID[id]
	if !ok {
		return Document{}, errors.Newf(errors.ErrDocumentNotFound, 404, "no document %q in corpus", id)
	}
	return s.docs[i], nil
}

// Len returns the number of documents in the store.
func (s *Store) Len() int {
	return len(s.docs)
}

// TotalTokens returns the summed post-normalisation length of all documents.
func (s *Store) TotalTokens() int64 {
	return s.total
}

// All returns the documents in insertion order. Callers must not mutate the
// returned slice.
func (s *Store) All() []Document {
	return s.docs
}

// IDs returns every document id in ascending order.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.docs))
	for _, d := range s.docs {
		ids = append(ids, d.ID)
	}
	sort.Strings(ids)
	return ids
}
