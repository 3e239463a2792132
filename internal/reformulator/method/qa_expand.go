package method

import (
	"context"
	"strings"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
)

// QAExpand decomposes the query into sub-questions, answers them from the
// contexts and refines the answers into one expansion.
const (
	QAExpandName            = "qa_expand"
	QAExpandVersion         = "1.0"
	QAExpandRequiresContext = true
	qaSubqPrompt            = "qa_expand.subq.v1"
	qaAnswerPrompt          = "qa_expand.answer.v1"
	qaRefinePrompt          = "qa_expand.refine.v1"
)

// QAExpandParams are the qa_expand options.
type QAExpandParams struct {
	reformulator.ContextParams `mapstructure:",squash"`
	RepeatQueryWeight          int `mapstructure:"repeat_query_weight"`
}

// NewQAExpand builds the qa_expand method. Its three steps sample at fixed
// low temperatures.
func NewQAExpand(deps reformulator.Deps) (reformulator.Reformulator, error) {
	if err := checkDeps(QAExpandName, deps, qaSubqPrompt, qaAnswerPrompt, qaRefinePrompt); err != nil {
		return nil, err
	}
	p := QAExpandParams{RepeatQueryWeight: 3}
	if err := reformulator.DecodeParams(QAExpandName, deps.Params, &p); err != nil {
		return nil, err
	}
	if p.RepeatQueryWeight < 0 {
		return nil, domain.Configurationf("%s: repeat_query_weight must be >= 0", QAExpandName)
	}
	spec, err := p.Apply(reformulator.Spec{
		Name:            QAExpandName,
		Version:         QAExpandVersion,
		RequiresContext: QAExpandRequiresContext,
		PromptIDs:       []string{qaSubqPrompt, qaAnswerPrompt, qaRefinePrompt},
	})
	if err != nil {
		return nil, err
	}
	maxTokens := deps.MaxTokens(256)

	return reformulator.NewBase(spec, deps, func(ctx context.Context, q domain.QueryItem, contexts []domain.SearchHit) (string, map[string]any, error) {
		subqs, err := chat(ctx, deps, qaSubqPrompt, prompt.Vars{"query": q.Text()}, 0.2, maxTokens)
		if err != nil {
			return "", nil, err
		}
		answers, err := chat(ctx, deps, qaAnswerPrompt, prompt.Vars{
			"query":    q.Text(),
			"contexts": reformulator.JoinContexts(contexts),
		}, 0.2, maxTokens)
		if err != nil {
			return "", nil, err
		}
		final, err := chat(ctx, deps, qaRefinePrompt, prompt.Vars{
			"query":   q.Text(),
			"subqs":   subqs,
			"answers": answers,
		}, 0.3, maxTokens)
		if err != nil {
			return "", nil, err
		}
		final = strings.TrimSpace(final)
		return reformulator.Expand(q.Text(), p.RepeatQueryWeight, final), map[string]any{
			"subqs":    subqs,
			"answers":  answers,
			"final_q":  final,
			"used_ctx": len(contexts),
		}, nil
	})
}
