package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadCorpus(t *testing.T) {
	path := writeFile(t, "corpus.jsonl", `{"id":"AP880101-0001","contents":"Climate report released"}

{"id":"AP880101-0002","text":"Ocean temperatures rising"}
{"id":"AP880102-0001","title":"Sea Level","contents":"Coastal warning issued"}
`)
	docs, err := LoadCorpus(path)
	if err != nil {
		t.Fatalf("LoadCorpus() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len(docs) = %d, want 3", len(docs))
	}
	if docs[0].ID != "AP880101-0001" || docs[0].Text != "Climate report released" {
		t.Errorf("docs[0] = %+v", docs[0])
	}
	if docs[1].Text != "Ocean temperatures rising" {
		t.Errorf("text fallback not applied: %+v", docs[1])
	}
	if docs[2].Text != "Sea Level Coastal warning issued" {
		t.Errorf("title not prepended: %+v", docs[2])
	}
}

func TestLoadCorpusMalformedLine(t *testing.T) {
	path := writeFile(t, "corpus.jsonl", `{"id":"a","contents":"fine"}
{not json}
`)
	if _, err := LoadCorpus(path); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestLoadCorpusMissingFile(t *testing.T) {
	if _, err := LoadCorpus(filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

const topicsFixture = `<top>
<num> Number: 051
<title> Airbus Subsidies

<desc> Description:
Document will discuss government assistance to Airbus Industrie.

<narr> Narrative:
A relevant document mentions subsidy amounts.
</top>

<top>
<num> Number: 052
<title> South African Sanctions
<desc> Description:
Document discusses sanctions against South Africa.
</top>

<top>
<title> Orphan without number
</top>
`

func TestLoadTopics(t *testing.T) {
	path := writeFile(t, "topics.txt", topicsFixture)
	topics, err := LoadTopics(path)
	if err != nil {
		t.Fatalf("LoadTopics() error = %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("len(topics) = %d, want 2", len(topics))
	}

	first := topics[0]
	if first.ID != "051" {
		t.Errorf("ID = %q, want 051", first.ID)
	}
	if first.Title != "Airbus Subsidies" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Description != "Document will discuss government assistance to Airbus Industrie." {
		t.Errorf("Description = %q", first.Description)
	}
	if first.Narrative != "A relevant document mentions subsidy amounts." {
		t.Errorf("Narrative = %q", first.Narrative)
	}
	if topics[1].ID != "052" || topics[1].Narrative != "" {
		t.Errorf("topics[1] = %+v", topics[1])
	}
}

func TestTopicQueryForms(t *testing.T) {
	topic := Topic{Title: "Airbus Subsidies", Description: "Government assistance to Airbus."}
	if topic.ShortQuery() != "Airbus Subsidies" {
		t.Errorf("ShortQuery() = %q", topic.ShortQuery())
	}
	if topic.LongQuery() != "Airbus Subsidies Government assistance to Airbus." {
		t.Errorf("LongQuery() = %q", topic.LongQuery())
	}
}

func TestLoadQrels(t *testing.T) {
	path := writeFile(t, "qrels.txt", `51 0 AP880101-0001 1
51 0 AP880102-0001 0
52 0 AP880101-0002 2

`)
	qrels, err := LoadQrels(path)
	if err != nil {
		t.Fatalf("LoadQrels() error = %v", err)
	}
	if len(qrels) != 2 {
		t.Fatalf("len(qrels) = %d, want 2", len(qrels))
	}
	if len(qrels["51"]) != 2 {
		t.Errorf("topic 51 judgments = %d, want 2", len(qrels["51"]))
	}
	j := qrels["52"][0]
	if j.DocID != "AP880101-0002" || j.Grade != 2 || j.TopicID != "52" {
		t.Errorf("judgment = %+v", j)
	}
}

func TestLoadQrelsBadGrade(t *testing.T) {
	path := writeFile(t, "qrels.txt", "51 0 AP880101-0001 -1\n")
	if _, err := LoadQrels(path); err == nil {
		t.Fatal("expected error for negative grade")
	}
}

func TestLoadQrelsShortLine(t *testing.T) {
	path := writeFile(t, "qrels.txt", "51 AP880101-0001 1\n")
	if _, err := LoadQrels(path); err == nil {
		t.Fatal("expected error for short line")
	}
}
