package method

import (
	"context"
	"regexp"
	"strings"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
)

// CSQE combines knowledge-only passages (KEQE) with key sentences the model
// quotes from the retrieved contexts.
const (
	CSQEName            = "csqe"
	CSQEVersion         = "1.0"
	CSQERequiresContext = true
	keqePrompt          = "keqe.v1"
	csqePrompt          = "csqe.v1"
)

// CSQEParams are the csqe options.
type CSQEParams struct {
	reformulator.ContextParams `mapstructure:",squash"`
	// GenNum is the number of generations for each of KEQE and CSQE; the
	// query is repeated as many times.
	GenNum int `mapstructure:"gen_num"`
}

// NewCSQE builds the csqe method.
func NewCSQE(deps reformulator.Deps) (reformulator.Reformulator, error) {
	if err := checkDeps(CSQEName, deps, keqePrompt, csqePrompt); err != nil {
		return nil, err
	}
	p := CSQEParams{GenNum: 2}
	if err := reformulator.DecodeParams(CSQEName, deps.Params, &p); err != nil {
		return nil, err
	}
	if p.GenNum < 1 {
		return nil, domain.Configurationf("%s: gen_num must be >= 1", CSQEName)
	}
	spec, err := p.Apply(reformulator.Spec{
		Name:            CSQEName,
		Version:         CSQEVersion,
		RequiresContext: CSQERequiresContext,
		PromptIDs:       []string{keqePrompt, csqePrompt},
	})
	if err != nil {
		return nil, err
	}
	temperature := deps.Temperature(1.0)
	maxTokens := deps.MaxTokens(1024)

	return reformulator.NewBase(spec, deps, func(ctx context.Context, q domain.QueryItem, contexts []domain.SearchHit) (string, map[string]any, error) {
		keqe, err := chatN(ctx, deps, keqePrompt, prompt.Vars{"query": q.Text()}, temperature, maxTokens, p.GenNum)
		if err != nil {
			return "", nil, err
		}
		for i := range keqe {
			keqe[i] = trimQuotes(strings.TrimSpace(keqe[i]))
		}

		responses, err := chatN(ctx, deps, csqePrompt, prompt.Vars{
			"query":    q.Text(),
			"contexts": reformulator.NumberedContexts(contexts),
		}, temperature, maxTokens, p.GenNum)
		if err != nil {
			return "", nil, err
		}
		sentences := make([]string, len(responses))
		for i, r := range responses {
			sentences[i] = extractKeySentences(r)
		}

		parts := make([]string, 0, len(keqe)+len(sentences))
		parts = append(parts, keqe...)
		parts = append(parts, sentences...)
		expanded := trimQuotes(strings.TrimSpace(strings.ToLower(reformulator.Expand(q.Text(), p.GenNum, parts...))))

		return expanded, map[string]any{
			"keqe_passages":     keqe,
			"csqe_responses":    responses,
			"csqe_sentences":    sentences,
			"gen_num":           p.GenNum,
			"total_generations": 2 * p.GenNum,
			"used_ctx":          len(contexts),
		}, nil
	})
}

var (
	quotedSentence = regexp.MustCompile(`"([^"]*)"`)
	docsHeader     = regexp.MustCompile(`(?im)^Relevant Documents?:?\s*\n?`)
	numberMarker   = regexp.MustCompile(`\d+[.:]\s*`)
)

// extractKeySentences returns the double-quoted sentences of a response. When
// the model ignored the quoting instruction it falls back to the text after
// numbered markers ("1.", "2:").
func extractKeySentences(response string) string {
	if m := quotedSentence.FindAllStringSubmatch(response, -1); len(m) > 0 {
		out := make([]string, len(m))
		for i, g := range m {
			out[i] = g[1]
		}
		return strings.Join(out, " ")
	}

	cleaned := docsHeader.ReplaceAllString(response, "")
	marks := numberMarker.FindAllStringIndex(cleaned, -1)
	var out []string
	for i, m := range marks {
		end := len(cleaned)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		if piece := strings.Join(strings.Fields(cleaned[m[1]:end]), " "); piece != "" {
			out = append(out, piece)
		}
	}
	return strings.Join(out, " ")
}

func trimQuotes(s string) string {
	return strings.Trim(strings.Trim(s, `"`), `'`)
}
