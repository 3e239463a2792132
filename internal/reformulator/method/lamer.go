package method

import (
	"context"
	"strings"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
)

// LameR answers the query from retrieved passages several times and
// interleaves the query with each answer.
const (
	LameRName            = "lamer"
	LameRVersion         = "1.0"
	LameRRequiresContext = true
	lamerPrompt          = "lamer.answer.v1"
)

// LameRParams are the lamer options.
type LameRParams struct {
	reformulator.ContextParams `mapstructure:",squash"`
	GenNum                     int `mapstructure:"gen_num"`
}

// NewLameR builds the lamer method.
func NewLameR(deps reformulator.Deps) (reformulator.Reformulator, error) {
	if err := checkDeps(LameRName, deps, lamerPrompt); err != nil {
		return nil, err
	}
	p := LameRParams{GenNum: 5}
	if err := reformulator.DecodeParams(LameRName, deps.Params, &p); err != nil {
		return nil, err
	}
	if p.GenNum < 1 {
		return nil, domain.Configurationf("%s: gen_num must be >= 1", LameRName)
	}
	spec, err := p.Apply(reformulator.Spec{
		Name:            LameRName,
		Version:         LameRVersion,
		RequiresContext: LameRRequiresContext,
		PromptIDs:       []string{lamerPrompt},
	})
	if err != nil {
		return nil, err
	}
	temperature := deps.Temperature(0.7)
	maxTokens := deps.MaxTokens(256)

	return reformulator.NewBase(spec, deps, func(ctx context.Context, q domain.QueryItem, contexts []domain.SearchHit) (string, map[string]any, error) {
		answers, err := chatN(ctx, deps, lamerPrompt, prompt.Vars{
			"query":    q.Text(),
			"contexts": reformulator.NumberedContexts(contexts),
		}, temperature, maxTokens, p.GenNum)
		if err != nil {
			return "", nil, err
		}
		parts := make([]string, 0, 2*len(answers))
		for i := range answers {
			answers[i] = strings.TrimSpace(answers[i])
			parts = append(parts, q.Text(), answers[i])
		}
		return reformulator.Expand(q.Text(), 0, parts...), map[string]any{
			"generated_passages": answers,
			"used_ctx":           len(contexts),
		}, nil
	})
}
