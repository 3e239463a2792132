package dataset

import (
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  plain  ", "plain"},
		{"line one\nline two\r\n", "line one line two"},
		{`"quoted answer"`, "quoted answer"},
		{`'single'`, "single"},
		{`back\slash and	tab`, "back slash and tab"},
		{"many    spaces", "many spaces"},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeQueries_TSV(t *testing.T) {
	in := "q1\twhat causes diabetes\nbroken\nq2\t   \nq3\t  eiffel tower height \n"
	items, err := DecodeQueries(strings.NewReader(in), QueryOptions{}, nil)
	if err != nil {
		t.Fatalf("DecodeQueries: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(items))
	}
	if items[0].QID() != "q1" || items[0].Text() != "what causes diabetes" {
		t.Errorf("unexpected first query %q/%q", items[0].QID(), items[0].Text())
	}
	if items[1].QID() != "q3" || items[1].Text() != "eiffel tower height" {
		t.Errorf("unexpected second query %q/%q", items[1].QID(), items[1].Text())
	}
}

func TestDecodeQueries_TSVCustomColumns(t *testing.T) {
	in := "text one\textra\t101\ntext two\textra\t102\n"
	items, err := DecodeQueries(strings.NewReader(in), QueryOptions{Format: FormatTSV, QIDCol: 2, QueryCol: 0}, nil)
	if err != nil {
		t.Fatalf("DecodeQueries: %v", err)
	}
	if len(items) != 2 || items[1].QID() != "102" || items[1].Text() != "text two" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestDecodeQueries_JSONL(t *testing.T) {
	in := `{"qid": 1, "query": "numeric id"}
not json
{"qid": "2"}
{"id": "3", "text": "other keys"}
{"qid": "4", "query": "  trimmed  "}
`
	items, err := DecodeQueries(strings.NewReader(in), QueryOptions{Format: FormatJSONL}, nil)
	if err != nil {
		t.Fatalf("DecodeQueries: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(items))
	}
	if items[0].QID() != "1" || items[1].Text() != "trimmed" {
		t.Errorf("unexpected items: %q %q", items[0].QID(), items[1].Text())
	}

	custom, err := DecodeQueries(strings.NewReader(in), QueryOptions{Format: FormatJSONL, QIDKey: "id", QueryKey: "text"}, nil)
	if err != nil {
		t.Fatalf("DecodeQueries custom keys: %v", err)
	}
	if len(custom) != 1 || custom[0].QID() != "3" {
		t.Errorf("unexpected custom-key items: %+v", custom)
	}
}

func TestDecodeQueries_Empty(t *testing.T) {
	_, err := DecodeQueries(strings.NewReader("only-one-column\n"), QueryOptions{}, nil)
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestDecodeQueries_UnknownFormat(t *testing.T) {
	_, err := DecodeQueries(strings.NewReader(""), QueryOptions{Format: "csv"}, nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestLoadQueries_MissingFile(t *testing.T) {
	if _, err := LoadQueries(filepath.Join(t.TempDir(), "none.tsv"), QueryOptions{}, nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWriteQueries_RoundTrip(t *testing.T) {
	queries := []domain.QueryItem{
		domain.MustQueryItem("q1", "first\nquery"),
		domain.MustQueryItem("q2", "second"),
	}
	var buf bytes.Buffer
	if err := WriteQueries(&buf, queries); err != nil {
		t.Fatalf("WriteQueries: %v", err)
	}
	if got, want := buf.String(), "q1\tfirst query\nq2\tsecond\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDecodeCorpus(t *testing.T) {
	in := `{"_id": "d1", "title": "Diabetes", "text": "Insulin resistance."}
{"_id": 7, "text": "numeric id"}
{"title": "no id"}
{broken
{"docid": "d3", "title": "Only title"}
`
	docs, err := DecodeCorpus(strings.NewReader(in), CorpusOptions{AnswerKeys: []string{"title", "text"}}, nil)
	if err != nil {
		t.Fatalf("DecodeCorpus: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 docs, got %d", len(docs))
	}
	if docs[0].ID != "d1" || docs[0].Content != "Diabetes\tInsulin resistance." {
		t.Errorf("unexpected doc 0: %+v", docs[0])
	}
	if docs[1].ID != "7" || docs[2].Content != "Only title" {
		t.Errorf("unexpected docs: %+v", docs[1:])
	}
}

func TestDecodeCorpus_Empty(t *testing.T) {
	_, err := DecodeCorpus(strings.NewReader("\n\n"), CorpusOptions{}, nil)
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestReadCorpus_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl.gz")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(`{"id": "g1", "contents": "compressed text"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	docs, err := ReadCorpus(path, CorpusOptions{AnswerKeys: []string{"contents"}}, nil)
	if err != nil {
		t.Fatalf("ReadCorpus: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "g1" || docs[0].Content != "compressed text" {
		t.Errorf("unexpected docs: %+v", docs)
	}
}

func TestSplitAnswerKey(t *testing.T) {
	got := SplitAnswerKey(" title | text ||")
	if len(got) != 2 || got[0] != "title" || got[1] != "text" {
		t.Errorf("SplitAnswerKey = %v", got)
	}
}

func TestContexts_RoundTrip(t *testing.T) {
	queries := []domain.QueryItem{domain.MustQueryItem("q1", "a"), domain.MustQueryItem("q2", "b")}
	hits := [][]domain.SearchHit{
		{{DocID: "d1", Score: 2.5, Content: "first"}, {DocID: "d2", Score: 1, Content: "second"}},
		{},
	}
	var buf bytes.Buffer
	if err := WriteContexts(&buf, queries, hits); err != nil {
		t.Fatalf("WriteContexts: %v", err)
	}

	got, err := DecodeContexts(&buf, nil)
	if err != nil {
		t.Fatalf("DecodeContexts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 qids, got %d", len(got))
	}
	q1 := got["q1"]
	if len(q1) != 2 || q1[0].DocID != "d1" || q1[0].Score != 2.5 || q1[1].Content != "second" {
		t.Errorf("unexpected q1 hits: %+v", q1)
	}
	if len(got["q2"]) != 0 {
		t.Errorf("expected no hits for q2, got %+v", got["q2"])
	}
}

func TestDecodeContexts_PlainStrings(t *testing.T) {
	in := `{"qid": "q1", "contexts": ["one", "two"]}
{"qid": "q2", "contexts": "not a list"}
{"contexts": ["no qid"]}
`
	got, err := DecodeContexts(strings.NewReader(in), nil)
	if err != nil {
		t.Fatalf("DecodeContexts: %v", err)
	}
	if len(got) != 1 || len(got["q1"]) != 2 || got["q1"][1].Content != "two" {
		t.Errorf("unexpected contexts: %+v", got)
	}
}

func TestDecodeContexts_DuplicateQID(t *testing.T) {
	in := `{"qid": "1", "contexts": ["flu doc"]}
{"qid": 1, "contexts": ["cold doc"]}
`
	_, err := DecodeContexts(strings.NewReader(in), nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name the line: %v", err)
	}
}

func TestWriteContexts_LengthMismatch(t *testing.T) {
	err := WriteContexts(&bytes.Buffer{}, []domain.QueryItem{domain.MustQueryItem("q1", "a")}, nil)
	if err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputBoth, "Concat": OutputConcat, "plain": OutputPlain, "both": OutputBoth} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("xml"); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestSiblingPaths(t *testing.T) {
	c, p := SiblingPaths("out/run.v1/result.tsv")
	if c != "out/run.v1/result_concat.tsv" || p != "out/run.v1/result_plain.tsv" {
		t.Errorf("got %q %q", c, p)
	}
	c, p = SiblingPaths("out.d/result")
	if c != "out.d/result_concat" || p != "out.d/result_plain" {
		t.Errorf("got %q %q", c, p)
	}
}

func TestWriteConcat(t *testing.T) {
	var buf bytes.Buffer
	err := WriteConcat(&buf, []domain.ReformulationResult{
		{QID: "q1", Original: "a", Reformulated: "a a a\nterm"},
	})
	if err != nil {
		t.Fatalf("WriteConcat: %v", err)
	}
	if got := buf.String(); got != "q1\ta a a term\n" {
		t.Errorf("got %q", got)
	}
}

func TestWritePlain(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		results []domain.ReformulationResult
		want    string
	}{
		{
			name:   "keywords",
			method: "genqr",
			results: []domain.ReformulationResult{
				{QID: "q1", Metadata: map[string]any{"keywords": []string{"insulin", "glucose"}}},
			},
			want: "qid\tkeyword_1\tkeyword_2\nq1\tinsulin\tglucose\n",
		},
		{
			name:   "single passage",
			method: "query2doc",
			results: []domain.ReformulationResult{
				{QID: "q1", Metadata: map[string]any{"pseudo_doc": "A passage\nwith lines."}},
			},
			want: "qid\tpassage\nq1\tA passage with lines.\n",
		},
		{
			name:   "no results uses fallback width",
			method: "query2e",
			want:   "qid\tentity_1\tentity_2\tentity_3\tentity_4\tentity_5\n",
		},
		{
			name:   "unknown method strips original",
			method: "custom",
			results: []domain.ReformulationResult{
				{QID: "q1", Original: "query", Reformulated: "query query expansion"},
			},
			want: "qid\tgenerated_content\nq1\texpansion\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WritePlain(&buf, tt.method, tt.results); err != nil {
				t.Fatalf("WritePlain: %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
