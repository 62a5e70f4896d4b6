// Package evaluate computes standard IR effectiveness metrics (P@k, R@k,
// average precision, reciprocal rank, NDCG@k) for a single topic's ranked
// list against its relevance judgments. Evaluate is a pure function; mean
// aggregation across a topic set is the caller's job.
package evaluate

import (
	"math"
	"sort"

	"github.com/syscred/evidence-engine/internal/retriever"
)

// Judgment is one relevance judgment (qrel): Grade 0 means judged
// non-relevant, 1 relevant, 2+ highly relevant.
type Judgment struct {
	TopicID string
	DocID   string
	Grade   int
}

// MetricsReport holds the per-topic metric values. All values are 0 for a
// topic with no relevant documents; that is a valid degenerate outcome,
// never NaN and never an error, so batch runs survive sparse qrels.
type MetricsReport struct {
	PrecisionAtK     map[int]float64 `json:"precision_at_k"`
	RecallAtK        map[int]float64 `json:"recall_at_k"`
	AveragePrecision float64         `json:"average_precision"`
	ReciprocalRank   float64         `json:"reciprocal_rank"`
	NDCGAtK          map[int]float64 `json:"ndcg_at_k"`
}

// Evaluate scores one ranked list against one topic's judgments at the
// given cutoffs. The ranked list is an already-fixed total order, so every
// metric here is tie-break-free.
func Evaluate(ranked []retriever.ScoredResult, judgments []Judgment, kValues []int) MetricsReport {
	grades := make(map[string]int, len(judgments))
	relevant := make(map[string]struct{})
	for _, j := range judgments {
		grades[j.DocID] = j.Grade
		if j.Grade > 0 {
			relevant[j.DocID] = struct{}{}
		}
	}

	report := MetricsReport{
		PrecisionAtK: make(map[int]float64, len(kValues)),
		RecallAtK:    make(map[int]float64, len(kValues)),
		NDCGAtK:      make(map[int]float64, len(kValues)),
	}
	for _, k := range kValues {
		report.PrecisionAtK[k] = precisionAt(ranked, relevant, k)
		report.RecallAtK[k] = recallAt(ranked, relevant, k)
		report.NDCGAtK[k] = ndcgAt(ranked, grades, k)
	}
	report.AveragePrecision = averagePrecision(ranked, relevant)
	report.ReciprocalRank = reciprocalRank(ranked, relevant)
	return report
}

func precisionAt(ranked []retriever.ScoredResult, relevant map[string]struct{}, k int) float64 {
	if k <= 0 {
		return 0
	}
	hits := 0
	for i := 0; i < k && i < len(ranked); i++ {
		if _, ok := relevant[ranked[i].DocID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

func recallAt(ranked []retriever.ScoredResult, relevant map[string]struct{}, k int) float64 {
	if len(relevant) == 0 || k <= 0 {
		return 0
	}
	hits := 0
	for i := 0; i < k && i < len(ranked); i++ {
		if _, ok := relevant[ranked[i].DocID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(relevant))
}

// averagePrecision is the mean of P@i over the ranks i holding a relevant
// document, normalised by the number of relevant documents retrieved. With
// no relevant document in the list the value is 0.
func averagePrecision(ranked []retriever.ScoredResult, relevant map[string]struct{}) float64 {
	if len(relevant) == 0 {
		return 0
	}
	hits := 0
	var sum float64
	for i, r := range ranked {
		if _, ok := relevant[r.DocID]; ok {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}
	if hits == 0 {
		return 0
	}
	return sum / float64(hits)
}

func reciprocalRank(ranked []retriever.ScoredResult, relevant map[string]struct{}) float64 {
	for i, r := range ranked {
		if _, ok := relevant[r.DocID]; ok {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// ndcgAt uses the exponential gain form (2^grade - 1)/log2(i+1) and
// normalises by the DCG of the ideal ordering of the judged set.
func ndcgAt(ranked []retriever.ScoredResult, grades map[string]int, k int) float64 {
	if k <= 0 {
		return 0
	}
	var dcg float64
	for i := 0; i < k && i < len(ranked); i++ {
		grade := grades[ranked[i].DocID]
		if grade > 0 {
			dcg += gain(grade) / math.Log2(float64(i)+2)
		}
	}

	ideal := make([]int, 0, len(grades))
	for _, grade := range grades {
		if grade > 0 {
			ideal = append(ideal, grade)
		}
	}
	if len(ideal) == 0 {
		return 0
	}
	// Ideal ordering: highest grades first.
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))
	var idcg float64
	for i := 0; i < k && i < len(ideal); i++ {
		idcg += gain(ideal[i]) / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func gain(grade int) float64 {
	return math.Pow(2, float64(grade)) - 1
}
