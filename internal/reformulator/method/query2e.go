package method

import (
	"context"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
)

// Query2E appends model-listed entities to the query.
const (
	Query2EName            = "query2e"
	Query2EVersion         = "1.0"
	Query2ERequiresContext = false
	query2ePrompt          = "query2e.entities.v1"
)

// Query2EParams are the query2e options.
type Query2EParams struct {
	RepeatQueryWeight int `mapstructure:"repeat_query_weight"`
}

// NewQuery2E builds the query2e method. It samples at a fixed low temperature.
func NewQuery2E(deps reformulator.Deps) (reformulator.Reformulator, error) {
	if err := checkDeps(Query2EName, deps, query2ePrompt); err != nil {
		return nil, err
	}
	p := Query2EParams{RepeatQueryWeight: 1}
	if err := reformulator.DecodeParams(Query2EName, deps.Params, &p); err != nil {
		return nil, err
	}
	if p.RepeatQueryWeight < 0 {
		return nil, domain.Configurationf("%s: repeat_query_weight must be >= 0", Query2EName)
	}
	maxTokens := deps.MaxTokens(256)

	return reformulator.NewBase(reformulator.Spec{
		Name:            Query2EName,
		Version:         Query2EVersion,
		RequiresContext: Query2ERequiresContext,
		PromptIDs:       []string{query2ePrompt},
	}, deps, func(ctx context.Context, q domain.QueryItem, _ []domain.SearchHit) (string, map[string]any, error) {
		out, err := chat(ctx, deps, query2ePrompt, prompt.Vars{"query": q.Text()}, 0.3, maxTokens)
		if err != nil {
			return "", nil, err
		}
		terms := reformulator.ParseTerms(out)
		return reformulator.Expand(q.Text(), p.RepeatQueryWeight, terms...), map[string]any{"keywords": terms}, nil
	})
}
