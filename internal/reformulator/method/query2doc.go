package method

import (
	"context"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
)

// Query2Doc writes a pseudo-document for the query and appends it to the
// repeated query.
const (
	Query2DocName            = "query2doc"
	Query2DocVersion         = "1.0"
	Query2DocRequiresContext = false
)

// Query2Doc prompting modes.
const (
	ModeZeroShot       = "zs"
	ModeChainOfThought = "cot"
)

var query2docPrompts = map[string]string{
	ModeZeroShot:       "query2doc.zeroshot.v1",
	ModeChainOfThought: "query2doc.cot.v1",
}

// Query2DocParams are the query2doc options.
type Query2DocParams struct {
	Mode              string `mapstructure:"mode"`
	RepeatQueryWeight int    `mapstructure:"repeat_query_weight"`
}

// NewQuery2Doc builds the query2doc method.
func NewQuery2Doc(deps reformulator.Deps) (reformulator.Reformulator, error) {
	p := Query2DocParams{Mode: ModeZeroShot, RepeatQueryWeight: 5}
	if err := reformulator.DecodeParams(Query2DocName, deps.Params, &p); err != nil {
		return nil, err
	}
	id, ok := query2docPrompts[p.Mode]
	if !ok {
		return nil, domain.Configurationf("%s: mode must be %q or %q, got %q", Query2DocName, ModeZeroShot, ModeChainOfThought, p.Mode)
	}
	if p.RepeatQueryWeight < 0 {
		return nil, domain.Configurationf("%s: repeat_query_weight must be >= 0", Query2DocName)
	}
	if err := checkDeps(Query2DocName, deps, id); err != nil {
		return nil, err
	}
	temperature := deps.Temperature(0.7)
	maxTokens := deps.MaxTokens(256)

	return reformulator.NewBase(reformulator.Spec{
		Name:            Query2DocName,
		Version:         Query2DocVersion,
		RequiresContext: Query2DocRequiresContext,
		PromptIDs:       []string{id},
	}, deps, func(ctx context.Context, q domain.QueryItem, _ []domain.SearchHit) (string, map[string]any, error) {
		doc, err := chat(ctx, deps, id, prompt.Vars{"query": q.Text()}, temperature, maxTokens)
		if err != nil {
			return "", nil, err
		}
		return reformulator.Expand(q.Text(), p.RepeatQueryWeight, doc), map[string]any{
			"mode":       p.Mode,
			"pseudo_doc": doc,
		}, nil
	})
}
