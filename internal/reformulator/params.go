package reformulator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/kwargs"
)

// DecodeParams decodes the option bag of method into out, rejecting unknown keys.
func DecodeParams(method string, params map[string]any, out any) error {
	if err := kwargs.Decode(params, out); err != nil {
		return fmt.Errorf("%s params: %w", method, err)
	}
	return nil
}

// ContextParams are shared by context-grounded methods.
type ContextParams struct {
	// RetrievalK is the retrieval depth and the number of contexts shown to the model.
	RetrievalK int `mapstructure:"retrieval_k"`
	// GenPassages, when set, further caps the contexts shown to the model.
	GenPassages int `mapstructure:"gen_passages"`
	// Threads bounds concurrent retrieval.
	Threads int `mapstructure:"threads"`
}

// Default retrieval settings for context-grounded methods.
const (
	DefaultRetrievalK       = 10
	DefaultRetrievalThreads = 16
)

// Apply fills defaults and returns the Spec fields the params control.
func (p *ContextParams) Apply(spec Spec) (Spec, error) {
	if p.RetrievalK < 0 || p.GenPassages < 0 || p.Threads < 0 {
		return spec, domain.Configurationf("%s: retrieval_k, gen_passages and threads must be >= 0", spec.Name)
	}
	if p.RetrievalK == 0 {
		p.RetrievalK = DefaultRetrievalK
	}
	if p.Threads == 0 {
		p.Threads = DefaultRetrievalThreads
	}
	spec.RetrievalK = p.RetrievalK
	spec.RetrievalThreads = p.Threads
	spec.MaxContexts = p.RetrievalK
	if p.GenPassages > 0 && p.GenPassages < spec.MaxContexts {
		spec.MaxContexts = p.GenPassages
	}
	return spec, nil
}

// ParseTerms splits a comma-separated model answer into trimmed terms.
func ParseTerms(out string) []string {
	out = strings.ReplaceAll(out, "\n", " ")
	var terms []string
	for _, t := range strings.Split(out, ",") {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// Expand joins query repeated n times with the non-empty parts, space-separated.
func Expand(query string, n int, parts ...string) string {
	all := make([]string, 0, n+len(parts))
	for range n {
		all = append(all, query)
	}
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			all = append(all, p)
		}
	}
	return strings.Join(all, " ")
}

// NumberedContexts renders hits as "1. content" lines, in order.
func NumberedContexts(hits []domain.SearchHit) string {
	var sb strings.Builder
	for i, h := range hits {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(h.Content)
	}
	return sb.String()
}

// JoinContexts concatenates hit contents one per line, in order.
func JoinContexts(hits []domain.SearchHit) string {
	return strings.Join(domain.Contents(hits), "\n")
}
