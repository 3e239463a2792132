package method

import (
	"context"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
)

// GenQREnsemble pools the keywords of several prompt variants.
const (
	GenQREnsembleName            = "genqr_ensemble"
	GenQREnsembleVersion         = "1.0"
	GenQREnsembleRequiresContext = false
)

// DefaultEnsembleVariants are the keyword prompts queried in order.
var DefaultEnsembleVariants = []string{"genqr.keywords.v1", "genqr.keywords.variant.v1"}

// GenQREnsembleParams are the genqr_ensemble options.
type GenQREnsembleParams struct {
	RepeatQueryWeight int      `mapstructure:"repeat_query_weight"`
	Variants          []string `mapstructure:"variants"`
}

// NewGenQREnsemble builds the genqr_ensemble method.
func NewGenQREnsemble(deps reformulator.Deps) (reformulator.Reformulator, error) {
	p := GenQREnsembleParams{RepeatQueryWeight: 3}
	if err := reformulator.DecodeParams(GenQREnsembleName, deps.Params, &p); err != nil {
		return nil, err
	}
	if len(p.Variants) == 0 {
		p.Variants = DefaultEnsembleVariants
	}
	if p.RepeatQueryWeight < 0 {
		return nil, domain.Configurationf("%s: repeat_query_weight must be >= 0", GenQREnsembleName)
	}
	if err := checkDeps(GenQREnsembleName, deps, p.Variants...); err != nil {
		return nil, err
	}
	temperature := deps.Temperature(0.9)
	maxTokens := deps.MaxTokens(256)
	variants := append([]string(nil), p.Variants...)

	return reformulator.NewBase(reformulator.Spec{
		Name:            GenQREnsembleName,
		Version:         GenQREnsembleVersion,
		RequiresContext: GenQREnsembleRequiresContext,
		PromptIDs:       variants,
	}, deps, func(ctx context.Context, q domain.QueryItem, _ []domain.SearchHit) (string, map[string]any, error) {
		var all []string
		for _, id := range variants {
			out, err := chat(ctx, deps, id, prompt.Vars{"query": q.Text()}, temperature, maxTokens)
			if err != nil {
				return "", nil, err
			}
			all = append(all, reformulator.ParseTerms(out)...)
		}
		return reformulator.Expand(q.Text(), p.RepeatQueryWeight, all...), map[string]any{"keywords": all}, nil
	})
}
