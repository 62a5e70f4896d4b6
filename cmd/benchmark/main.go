// The benchmark command runs the full retrieval-quality evaluation: it
// indexes a JSONL corpus, runs every retrieval configuration over a TREC
// topic set, scores the rankings against qrels, and prints a comparison
// table. Results can optionally be persisted to PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/syscred/evidence-engine/internal/benchstore"
	"github.com/syscred/evidence-engine/internal/corpus"
	"github.com/syscred/evidence-engine/internal/dataset"
	"github.com/syscred/evidence-engine/internal/evaluate"
	"github.com/syscred/evidence-engine/internal/retriever"
	"github.com/syscred/evidence-engine/internal/scorer"
	"github.com/syscred/evidence-engine/pkg/config"
	"github.com/syscred/evidence-engine/pkg/logger"
	"github.com/syscred/evidence-engine/pkg/postgres"
)

// runConfig is one retrieval configuration in the comparison grid.
type runConfig struct {
	Name   string
	Model  scorer.Model
	UsePRF bool
}

var grid = []runConfig{
	{Name: "BM25", Model: scorer.ModelBM25},
	{Name: "BM25+PRF", Model: scorer.ModelBM25, UsePRF: true},
	{Name: "TFIDF", Model: scorer.ModelTFIDF},
	{Name: "QLD", Model: scorer.ModelQLD},
	{Name: "QLD+PRF", Model: scorer.ModelQLD, UsePRF: true},
}

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	k := flag.Int("k", 10, "results retrieved per topic")
	persist := flag.Bool("persist", false, "store results in postgres")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if cfg.Dataset.TopicsPath == "" || cfg.Dataset.QrelsPath == "" {
		fmt.Fprintln(os.Stderr, "benchmark requires dataset.topicsPath and dataset.qrelsPath")
		os.Exit(1)
	}

	started := time.Now()
	raw, err := dataset.LoadCorpus(cfg.Dataset.CorpusPath)
	if err != nil {
		slog.Error("failed to load corpus", "error", err)
		os.Exit(1)
	}
	store, err := corpus.Build(raw)
	if err != nil {
		slog.Error("failed to build corpus", "error", err)
		os.Exit(1)
	}
	topics, err := dataset.LoadTopics(cfg.Dataset.TopicsPath)
	if err != nil {
		slog.Error("failed to load topics", "error", err)
		os.Exit(1)
	}
	qrels, err := dataset.LoadQrels(cfg.Dataset.QrelsPath)
	if err != nil {
		slog.Error("failed to load qrels", "error", err)
		os.Exit(1)
	}

	engine := retriever.New(retriever.Config{
		Params: scorer.Params{
			K1: cfg.Retrieval.K1,
			B:  cfg.Retrieval.B,
			Mu: cfg.Retrieval.Mu,
		},
		PRFTopDocs: cfg.Retrieval.PRFTopDocs,
		PRFTerms:   cfg.Retrieval.PRFTerms,
	})
	engine.SetCorpus(store)
	slog.Info("benchmark ready",
		"docs", engine.DocCount(),
		"terms", engine.TermCount(),
		"topics", len(topics),
	)

	ctx := context.Background()
	results := make([]benchstore.ConfigResult, 0, len(grid))
	for _, rc := range grid {
		result, err := runConfiguration(ctx, engine, topics, qrels, rc, *k)
		if err != nil {
			slog.Error("configuration failed", "config", rc.Name, "error", err)
			os.Exit(1)
		}
		results = append(results, result)
	}

	printTable(results, *k)

	if *persist {
		run := benchstore.Run{
			CorpusPath: cfg.Dataset.CorpusPath,
			TopicsPath: cfg.Dataset.TopicsPath,
			QrelsPath:  cfg.Dataset.QrelsPath,
			Docs:       engine.DocCount(),
			Topics:     len(topics),
			StartedAt:  started.UTC(),
			DurationMs: time.Since(started).Milliseconds(),
		}
		if err := persistRun(ctx, cfg.Postgres, run, results); err != nil {
			slog.Error("failed to persist benchmark run", "error", err)
			os.Exit(1)
		}
	}
}

// runConfiguration evaluates one configuration over every topic that has
// judgments and returns the mean metrics. Topics without qrels are skipped
// rather than averaged in as zeros.
func runConfiguration(
	ctx context.Context,
	engine *retriever.Engine,
	topics []dataset.Topic,
	qrels map[string][]evaluate.Judgment,
	rc runConfig,
	k int,
) (benchstore.ConfigResult, error) {
	result := benchstore.ConfigResult{
		Name:   rc.Name,
		Model:  string(rc.Model),
		UsePRF: rc.UsePRF,
	}
	var sumP10, sumR10, sumAP, sumRR, sumNDCG, sumLatency float64
	for _, topic := range topics {
		judgments, ok := qrels[topic.ID]
		if !ok {
			continue
		}
		start := time.Now()
		res, err := engine.Retrieve(ctx, topic.ShortQuery(), retriever.Options{
			K:      k,
			Model:  rc.Model,
			UsePRF: rc.UsePRF,
		})
		if err != nil {
			return result, fmt.Errorf("topic %s: %w", topic.ID, err)
		}
		sumLatency += float64(time.Since(start).Microseconds()) / 1000

		report := evaluate.Evaluate(res.Results, judgments, []int{k})
		sumP10 += report.PrecisionAtK[k]
		sumR10 += report.RecallAtK[k]
		sumAP += report.AveragePrecision
		sumRR += report.ReciprocalRank
		sumNDCG += report.NDCGAtK[k]
		result.TopicsRun++
	}
	if result.TopicsRun == 0 {
		return result, fmt.Errorf("no topic in %s has judgments", rc.Name)
	}
	n := float64(result.TopicsRun)
	result.MeanP10 = sumP10 / n
	result.MeanR10 = sumR10 / n
	result.MAP = sumAP / n
	result.MRR = sumRR / n
	result.MeanNDCG10 = sumNDCG / n
	result.AvgLatencyMs = sumLatency / n
	return result, nil
}

func printTable(results []benchstore.ConfigResult, k int) {
	fmt.Printf("%-10s %8s %8s %8s %8s %8s %8s %10s\n",
		"Config", fmt.Sprintf("P@%d", k), fmt.Sprintf("R@%d", k),
		"MAP", "MRR", fmt.Sprintf("NDCG@%d", k), "Topics", "Avg ms")
	for _, r := range results {
		fmt.Printf("%-10s %8.4f %8.4f %8.4f %8.4f %8.4f %8d %10.2f\n",
			r.Name, r.MeanP10, r.MeanR10, r.MAP, r.MRR, r.MeanNDCG10,
			r.TopicsRun, r.AvgLatencyMs)
	}

	best := make([]benchstore.ConfigResult, len(results))
	copy(best, results)
	sort.Slice(best, func(i, j int) bool { return best[i].MAP > best[j].MAP })
	fmt.Printf("\nBest MAP: %s (%.4f)\n", best[0].Name, best[0].MAP)
}

func persistRun(ctx context.Context, cfg config.PostgresConfig, run benchstore.Run, results []benchstore.ConfigResult) error {
	client, err := postgres.New(cfg)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer client.Close()

	st := benchstore.New(client)
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	runID, err := st.SaveRun(ctx, run, results)
	if err != nil {
		return err
	}
	slog.Info("benchmark run stored", "run_id", runID)
	return nil
}
