package dataset

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// OutputFormat selects how reformulation results are written.
type OutputFormat string

// Output formats.
const (
	// OutputConcat writes qid<TAB>reformulated.
	OutputConcat OutputFormat = "concat"
	// OutputPlain writes qid followed by the generated pieces only.
	OutputPlain OutputFormat = "plain"
	// OutputBoth writes both files side by side.
	OutputBoth OutputFormat = "both"
)

// ParseOutputFormat validates a format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputConcat, OutputPlain, OutputBoth:
		return f, nil
	case "":
		return OutputBoth, nil
	default:
		return "", domain.Configurationf("invalid output format %q, use concat, plain or both", s)
	}
}

// SiblingPaths derives the concat and plain file names for OutputBoth:
// "out/run.tsv" becomes "out/run_concat.tsv" and "out/run_plain.tsv".
func SiblingPaths(path string) (concat, plain string) {
	ext := ""
	base := path
	if i := strings.LastIndex(path, "."); i > strings.LastIndexAny(path, `/\`) {
		base, ext = path[:i], path[i:]
	}
	return base + "_concat" + ext, base + "_plain" + ext
}

// WriteConcat writes qid<TAB>reformulated lines.
func WriteConcat(w io.Writer, results []domain.ReformulationResult) error {
	tw := newTSVWriter(w)
	for _, r := range results {
		tw.row(r.QID, CleanText(r.Reformulated))
	}
	return tw.flush()
}

type plainLayout struct {
	column        string
	numbered      bool
	fallbackWidth int
	extract       func(r domain.ReformulationResult) []string
}

var plainLayouts = map[string]plainLayout{
	"genqr":          {column: "keyword", numbered: true, fallbackWidth: 5, extract: metaList("keywords")},
	"genqr_ensemble": {column: "keyword", numbered: true, fallbackWidth: 10, extract: metaList("keywords")},
	"query2e":        {column: "entity", numbered: true, fallbackWidth: 5, extract: metaList("keywords")},
	"lamer":          {column: "passage", numbered: true, fallbackWidth: 5, extract: metaList("generated_passages")},
	"query2doc":      {column: "passage", extract: metaJoined("pseudo_doc")},
	"mugi":           {column: "pseudo_document", extract: metaJoined("pseudo_docs")},
	"qa_expand":      {column: "refined_query", extract: metaJoined("final_q")},
	"csqe":           {column: "expansion", extract: metaJoined("keqe_passages", "csqe_sentences")},
}

// WritePlain writes a header row followed by qid and the cleaned generated
// content of each result. The layout depends on the method.
func WritePlain(w io.Writer, method string, results []domain.ReformulationResult) error {
	layout, ok := plainLayouts[method]
	if !ok {
		layout = plainLayout{column: "generated_content", extract: withoutOriginal}
	}

	tw := newTSVWriter(w)
	header := []string{"qid"}
	if layout.numbered {
		width := layout.fallbackWidth
		if len(results) > 0 {
			if n := len(layout.extract(results[0])); n > 0 {
				width = n
			}
		}
		for i := 1; i <= width; i++ {
			header = append(header, fmt.Sprintf("%s_%d", layout.column, i))
		}
	} else {
		header = append(header, layout.column)
	}
	tw.row(header...)

	for _, r := range results {
		parts := layout.extract(r)
		if len(parts) == 0 {
			parts = withoutOriginal(r)
		}
		row := make([]string, 0, len(parts)+1)
		row = append(row, r.QID)
		for _, p := range parts {
			row = append(row, CleanText(p))
		}
		tw.row(row...)
	}
	return tw.flush()
}

func metaList(key string) func(domain.ReformulationResult) []string {
	return func(r domain.ReformulationResult) []string {
		return stringsOf(r.Metadata[key])
	}
}

func metaJoined(keys ...string) func(domain.ReformulationResult) []string {
	return func(r domain.ReformulationResult) []string {
		var parts []string
		for _, k := range keys {
			parts = append(parts, stringsOf(r.Metadata[k])...)
		}
		if len(parts) == 0 {
			return nil
		}
		return []string{strings.Join(parts, " ")}
	}
}

func withoutOriginal(r domain.ReformulationResult) []string {
	return []string{strings.TrimSpace(strings.ReplaceAll(r.Reformulated, r.Original, ""))}
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, fmt.Sprint(x))
		}
		return out
	default:
		return nil
	}
}

type tsvWriter struct {
	bw  *bufio.Writer
	err error
}

func newTSVWriter(w io.Writer) *tsvWriter {
	return &tsvWriter{bw: bufio.NewWriter(w)}
}

func (t *tsvWriter) row(fields ...string) {
	if t.err != nil {
		return
	}
	_, t.err = t.bw.WriteString(strings.Join(fields, "\t") + "\n")
}

func (t *tsvWriter) flush() error {
	if t.err != nil {
		return t.err
	}
	return t.bw.Flush()
}
