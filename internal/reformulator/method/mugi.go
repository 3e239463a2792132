package method

import (
	"context"
	"strings"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
)

// MuGI samples several pseudo-documents and balances them against the query
// by repeating it in proportion to the generated length.
const (
	MuGIName            = "mugi"
	MuGIVersion         = "1.0"
	MuGIRequiresContext = false
	mugiPrompt          = "mugi.pseudodoc.v1"
)

// MuGIParams are the mugi options.
type MuGIParams struct {
	NumDocs int `mapstructure:"num_docs"`
	// AdaptiveTimes divides the pseudo-document to query length ratio.
	AdaptiveTimes int `mapstructure:"adaptive_times"`
}

// NewMuGI builds the mugi method.
func NewMuGI(deps reformulator.Deps) (reformulator.Reformulator, error) {
	if err := checkDeps(MuGIName, deps, mugiPrompt); err != nil {
		return nil, err
	}
	p := MuGIParams{NumDocs: 5, AdaptiveTimes: 5}
	if err := reformulator.DecodeParams(MuGIName, deps.Params, &p); err != nil {
		return nil, err
	}
	if p.NumDocs < 1 || p.AdaptiveTimes < 1 {
		return nil, domain.Configurationf("%s: num_docs and adaptive_times must be >= 1", MuGIName)
	}
	temperature := deps.Temperature(0.7)
	maxTokens := deps.MaxTokens(256)

	return reformulator.NewBase(reformulator.Spec{
		Name:            MuGIName,
		Version:         MuGIVersion,
		RequiresContext: MuGIRequiresContext,
		PromptIDs:       []string{mugiPrompt},
	}, deps, func(ctx context.Context, q domain.QueryItem, _ []domain.SearchHit) (string, map[string]any, error) {
		docs, err := chatN(ctx, deps, mugiPrompt, prompt.Vars{"query": q.Text()}, temperature, maxTokens, p.NumDocs)
		if err != nil {
			return "", nil, err
		}
		for i := range docs {
			docs[i] = strings.TrimSpace(docs[i])
		}
		repeats := queryRepeats(q.Text(), docs, p.AdaptiveTimes)
		return reformulator.Expand(q.Text(), repeats, docs...), map[string]any{
			"pseudo_docs":   docs,
			"query_repeats": repeats,
		}, nil
	})
}

// queryRepeats is (pseudo-document words / query words) / adaptive, at least 1.
func queryRepeats(query string, docs []string, adaptive int) int {
	qLen := len(strings.Fields(query))
	if qLen == 0 {
		return 1
	}
	docLen := 0
	for _, d := range docs {
		docLen += len(strings.Fields(d))
	}
	return max(1, docLen/(qLen*adaptive))
}
