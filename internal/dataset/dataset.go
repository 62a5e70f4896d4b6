// Package dataset loads the three external inputs the engine consumes: a
// JSONL document corpus, TREC-format topic files, and TREC qrels. Loaders
// materialise everything up front; the engine never streams from disk.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/syscred/evidence-engine/internal/corpus"
	"github.com/syscred/evidence-engine/internal/evaluate"
)

// Topic is a structured query: Title is the default (short) query text,
// Description and Narrative are progressively longer forms.
type Topic struct {
	ID          string
	Title       string
	Description string
	Narrative   string
}

// ShortQuery returns the title-only query form.
func (t Topic) ShortQuery() string {
	return t.Title
}

// LongQuery returns title plus description.
func (t Topic) LongQuery() string {
	return strings.TrimSpace(t.Title + " " + t.Description)
}

// corpusLine matches the JSONL corpus convention: "contents" is preferred,
// "text" accepted as a fallback, "title" prepended when present.
type corpusLine struct {
	ID       string `json:"id"`
	Contents string `json:"contents"`
	Text     string `json:"text"`
	Title    string `json:"title"`
}

// LoadCorpus reads a JSONL corpus file into raw documents ready for
// corpus.Build. Blank lines are skipped; a malformed line fails the load.
func LoadCorpus(path string) ([]corpus.RawDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer f.Close()

	docs := make([]corpus.RawDocument, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var cl corpusLine
		if err := json.Unmarshal([]byte(line), &cl); err != nil {
			return nil, fmt.Errorf("corpus %s line %d: %w", path, lineNo, err)
		}
		text := cl.Contents
		if text == "" {
			text = cl.Text
		}
		if cl.Title != "" {
			text = cl.Title + " " + text
		}
		docs = append(docs, corpus.RawDocument{ID: cl.ID, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	return docs, nil
}

var (
	topBlockRe = regexp.MustCompile(`(?s)<top>(.*?)</top>`)
	numRe      = regexp.MustCompile(`(?i)<num>\s*(?:Number:)?\s*(\d+)`)
	titleRe    = regexp.MustCompile(`(?is)<title>\s*(.*?)\s*(?:<|$)`)
	descRe     = regexp.MustCompile(`(?is)<desc>\s*(?:Description:)?\s*(.*?)\s*(?:<narr>|<|$)`)
	narrRe     = regexp.MustCompile(`(?is)<narr>\s*(?:Narrative:)?\s*(.*?)\s*(?:<|$)`)
)

// LoadTopics parses a TREC topic file: <top> blocks containing <num>,
// <title>, <desc>, and optional <narr> tags. Blocks without a number or
// title are skipped, matching how the historical AP88-90 files are parsed.
func LoadTopics(path string) ([]Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topics %s: %w", path, err)
	}
	content := string(data)

	topics := make([]Topic, 0)
	for _, block := range topBlockRe.FindAllStringSubmatch(content, -1) {
		body := block[1]
		num := numRe.FindStringSubmatch(body)
		if num == nil {
			continue
		}
		topic := Topic{ID: strings.TrimSpace(num[1])}
		if m := titleRe.FindStringSubmatch(body); m != nil {
			topic.Title = collapseSpace(m[1])
		}
		if m := descRe.FindStringSubmatch(body); m != nil {
			topic.Description = collapseSpace(m[1])
		}
		if m := narrRe.FindStringSubmatch(body); m != nil {
			topic.Narrative = collapseSpace(m[1])
		}
		if topic.Title == "" {
			continue
		}
		topics = append(topics, topic)
	}
	return topics, nil
}

// LoadQrels parses TREC relevance judgments, one per line in the form
// "topic_id iteration doc_id grade". The iteration column is ignored.
// Judgments are grouped by topic id.
func LoadQrels(path string) (map[string][]evaluate.Judgment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening qrels %s: %w", path, err)
	}
	defer f.Close()

	qrels := make(map[string][]evaluate.Judgment)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, fmt.Errorf("qrels %s line %d: want 4 fields, got %d", path, lineNo, len(fields))
		}
		grade, err := strconv.Atoi(fields[3])
		if err != nil || grade < 0 {
			return nil, fmt.Errorf("qrels %s line %d: bad grade %q", path, lineNo, fields[3])
		}
		topicID := fields[0]
		qrels[topicID] = append(qrels[topicID], evaluate.Judgment{
			TopicID: topicID,
			DocID:   fields[2],
			Grade:   grade,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading qrels %s: %w", path, err)
	}
	return qrels, nil
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
