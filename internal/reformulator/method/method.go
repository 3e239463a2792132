// Package method holds the built-in reformulation methods.
package method

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/llm"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
)

// RegisterBuiltins adds every built-in method to reg.
func RegisterBuiltins(reg *reformulator.Registry) error {
	builtins := []struct {
		name    string
		factory reformulator.Factory
	}{
		{GenQRName, NewGenQR},
		{GenQREnsembleName, NewGenQREnsemble},
		{Query2DocName, NewQuery2Doc},
		{Query2EName, NewQuery2E},
		{MuGIName, NewMuGI},
		{LameRName, NewLameR},
		{QAExpandName, NewQAExpand},
		{CSQEName, NewCSQE},
	}
	for _, b := range builtins {
		if err := reg.Register(b.name, b.factory); err != nil {
			return fmt.Errorf("register %s: %w", b.name, err)
		}
	}
	return nil
}

// checkDeps verifies the collaborators every method needs.
func checkDeps(name string, deps reformulator.Deps, promptIDs ...string) error {
	if deps.LLM == nil {
		return domain.Configurationf("%s: llm client is required", name)
	}
	if deps.Prompts == nil {
		return domain.Configurationf("%s: prompt bank is required", name)
	}
	for _, id := range promptIDs {
		if _, ok := deps.Prompts.Get(id); !ok {
			return fmt.Errorf("%s: %w: %q", name, domain.ErrPromptNotFound, id)
		}
	}
	return nil
}

// chat renders id and sends it.
func chat(
	ctx context.Context, deps reformulator.Deps, id string, vars prompt.Vars, temperature float64, maxTokens int,
) (string, error) {
	msgs, err := deps.Prompts.Render(id, vars)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	out, err := deps.LLM.Chat(ctx, msgs, temperature, maxTokens)
	if err != nil {
		return "", fmt.Errorf("complete %s: %w", id, err)
	}
	return out, nil
}

// chatN renders id and asks for n completions.
func chatN(
	ctx context.Context, deps reformulator.Deps, id string, vars prompt.Vars, temperature float64, maxTokens, n int,
) ([]string, error) {
	msgs, err := deps.Prompts.Render(id, vars)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}
	out, err := llm.ChatN(ctx, deps.LLM, msgs, temperature, maxTokens, n)
	if err != nil {
		return nil, fmt.Errorf("complete %s: %w", id, err)
	}
	return out, nil
}
