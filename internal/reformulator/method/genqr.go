package method

import (
	"context"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
)

// GenQR asks the model for related keywords and appends them to the repeated query.
const (
	GenQRName            = "genqr"
	GenQRVersion         = "1.0"
	GenQRRequiresContext = false
	genqrPrompt          = "genqr.keywords.v1"
)

// GenQRParams are the genqr options.
type GenQRParams struct {
	RepeatQueryWeight int `mapstructure:"repeat_query_weight"`
}

// NewGenQR builds the genqr method.
func NewGenQR(deps reformulator.Deps) (reformulator.Reformulator, error) {
	if err := checkDeps(GenQRName, deps, genqrPrompt); err != nil {
		return nil, err
	}
	p := GenQRParams{RepeatQueryWeight: 3}
	if err := reformulator.DecodeParams(GenQRName, deps.Params, &p); err != nil {
		return nil, err
	}
	if p.RepeatQueryWeight < 0 {
		return nil, domain.Configurationf("%s: repeat_query_weight must be >= 0", GenQRName)
	}
	temperature := deps.Temperature(0.8)
	maxTokens := deps.MaxTokens(256)

	return reformulator.NewBase(reformulator.Spec{
		Name:            GenQRName,
		Version:         GenQRVersion,
		RequiresContext: GenQRRequiresContext,
		PromptIDs:       []string{genqrPrompt},
	}, deps, func(ctx context.Context, q domain.QueryItem, _ []domain.SearchHit) (string, map[string]any, error) {
		out, err := chat(ctx, deps, genqrPrompt, prompt.Vars{"query": q.Text()}, temperature, maxTokens)
		if err != nil {
			return "", nil, err
		}
		terms := reformulator.ParseTerms(out)
		return reformulator.Expand(q.Text(), p.RepeatQueryWeight, terms...), map[string]any{"keywords": terms}, nil
	})
}
