package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/prompt"
	"github.com/kailas-cloud/queryforge/internal/reformulator"
	"github.com/kailas-cloud/queryforge/internal/searcher"
	"github.com/kailas-cloud/queryforge/internal/version"
)

func (a *app) promptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect the prompt catalog",
	}
	cmd.AddCommand(a.promptsListCmd(), a.promptsShowCmd())
	return cmd
}

func (a *app) promptsListCmd() *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List prompt ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bank, err := a.prompts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if family != "" {
				for _, e := range bank.Family(family) {
					fmt.Fprintln(out, e.ID)
				}
				return nil
			}
			for _, id := range bank.IDs() {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", "", "only prompts of this method family")
	return cmd
}

// promptMeta is the JSON shape printed by prompts show.
type promptMeta struct {
	ID           string            `json:"id"`
	MethodFamily string            `json:"method_family"`
	Version      int               `json:"version"`
	IntroducedBy string            `json:"introduced_by,omitempty"`
	License      string            `json:"license,omitempty"`
	Authors      []string          `json:"authors,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Variables    []string          `json:"variables"`
	Template     map[string]string `json:"template,omitempty"`
}

func (a *app) promptsShowCmd() *cobra.Command {
	var withTemplate bool
	cmd := &cobra.Command{
		Use:   "show <prompt-id>",
		Short: "Print the metadata of one prompt as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bank, err := a.prompts()
			if err != nil {
				return err
			}
			e, ok := bank.Get(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", domain.ErrPromptNotFound, args[0])
			}
			meta := metaOf(e)
			if withTemplate {
				meta.Template = map[string]string{"system": e.System, "user": e.User}
				if e.Assistant != "" {
					meta.Template["assistant"] = e.Assistant
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			if err := enc.Encode(meta); err != nil {
				return fmt.Errorf("encode prompt %s: %w", meta.ID, err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withTemplate, "template", false, "include the message templates")
	return cmd
}

func metaOf(e prompt.Entry) promptMeta {
	return promptMeta{
		ID:           e.ID,
		MethodFamily: e.MethodFamily,
		Version:      e.Version,
		IntroducedBy: e.IntroducedBy,
		License:      e.License,
		Authors:      e.Authors,
		Tags:         e.Tags,
		Notes:        e.Notes,
		Variables:    e.Variables(),
	}
}

func (a *app) methodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the registered reformulation methods",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(reformulator.Methods.Names(), "\n"))
		},
	}
}

func (a *app) searchersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "searchers",
		Short: "List the registered searcher adapters",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(searcher.Searchers.Names(), "\n"))
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
