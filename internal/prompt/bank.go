// Package prompt loads the versioned prompt catalog and renders entries into chat messages.
package prompt

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

//go:embed catalog/prompt_bank.yaml
var defaultCatalog []byte

// Vars holds template variable values.
type Vars map[string]string

// Entry is a single versioned prompt. Immutable after load.
type Entry struct {
	ID           string
	MethodFamily string
	Version      int
	System       string
	User         string
	Assistant    string
	IntroducedBy string
	License      string
	Authors      []string
	Tags         []string
	Notes        string

	system    template
	user      template
	assistant template
}

// Base returns the id without its version suffix ("genqr.keywords.v1" -> "genqr.keywords").
func (e *Entry) Base() string {
	return e.ID[:strings.LastIndex(e.ID, ".v")]
}

// Variables returns every placeholder declared by the entry's templates.
func (e *Entry) Variables() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range []template{e.system, e.user, e.assistant} {
		for _, v := range t.variables {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}

// Bank is an in-memory prompt catalog indexed by id. Read-only after Load.
type Bank struct {
	byID map[string]*Entry
	ids  []string
}

// Load parses a YAML catalog: a sequence of prompt entries.
func Load(r io.Reader) (*Bank, error) {
	var nodes []yaml.Node
	if err := yaml.NewDecoder(r).Decode(&nodes); err != nil && !errors.Is(err, io.EOF) {
		return nil, &CatalogParseError{Index: -1, Reason: "invalid catalog document", Err: err}
	}

	b := &Bank{byID: make(map[string]*Entry, len(nodes))}
	for i := range nodes {
		entry, err := parseEntry(i, &nodes[i])
		if err != nil {
			return nil, err
		}
		if _, dup := b.byID[entry.ID]; dup {
			return nil, &CatalogParseError{Index: i, ID: entry.ID, Reason: "duplicate id"}
		}
		b.byID[entry.ID] = entry
		b.ids = append(b.ids, entry.ID)
	}
	sort.Strings(b.ids)
	return b, nil
}

// LoadFile loads a catalog from a YAML file.
func LoadFile(path string) (*Bank, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open prompt catalog %s: %w", path, err)
	}
	defer f.Close()

	b, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load prompt catalog %s: %w", path, err)
	}
	return b, nil
}

// Default loads the built-in catalog.
func Default() (*Bank, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// Render looks up id and substitutes vars into its templates.
// Messages come out system first (when non-empty), then user, then the
// optional assistant priming message. Extra vars are ignored.
func (b *Bank) Render(id string, vars Vars) ([]domain.Message, error) {
	e, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrPromptNotFound, id)
	}

	parts := []struct {
		role string
		tmpl template
	}{
		{domain.RoleSystem, e.system},
		{domain.RoleUser, e.user},
		{domain.RoleAssistant, e.assistant},
	}

	msgs := make([]domain.Message, 0, len(parts))
	for _, p := range parts {
		if p.tmpl.empty() {
			continue
		}
		content, missing, ok := p.tmpl.render(vars)
		if !ok {
			return nil, &TemplateRenderError{PromptID: id, Variable: missing}
		}
		if content == "" && p.role != domain.RoleUser {
			continue
		}
		msgs = append(msgs, domain.Message{Role: p.role, Content: content})
	}
	return msgs, nil
}

// Get returns the entry for id.
func (b *Bank) Get(id string) (Entry, bool) {
	e, ok := b.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// IDs returns all prompt ids, sorted.
func (b *Bank) IDs() []string {
	out := make([]string, len(b.ids))
	copy(out, b.ids)
	return out
}

// Family returns the entries of one method family ordered by id.
func (b *Bank) Family(family string) []Entry {
	var out []Entry
	for _, id := range b.ids {
		if e := b.byID[id]; e.MethodFamily == family {
			out = append(out, *e)
		}
	}
	return out
}

// Latest returns the highest-version entry whose id is base + ".v<N>".
func (b *Bank) Latest(base string) (Entry, bool) {
	var best *Entry
	for _, id := range b.ids {
		e := b.byID[id]
		if e.Base() != base {
			continue
		}
		if best == nil || e.Version > best.Version {
			best = e
		}
	}
	if best == nil {
		return Entry{}, false
	}
	return *best, true
}

// Len returns the number of entries.
func (b *Bank) Len() int { return len(b.ids) }

// --- parsing ---

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*\.v([0-9]+)$`)

type rawTemplate struct {
	System    *string `yaml:"system"`
	User      *string `yaml:"user"`
	Assistant *string `yaml:"assistant"`
}

type rawEntry struct {
	ID           *string      `yaml:"id"`
	MethodFamily *string      `yaml:"method_family"`
	Version      *int         `yaml:"version"`
	Template     *rawTemplate `yaml:"template"`
	IntroducedBy string       `yaml:"introduced_by"`
	License      string       `yaml:"license"`
	Authors      stringList   `yaml:"authors"`
	Tags         stringList   `yaml:"tags"`
	Notes        string       `yaml:"notes"`
}

func parseEntry(i int, node *yaml.Node) (*Entry, error) {
	if node.Kind != yaml.MappingNode {
		return nil, &CatalogParseError{Index: i, Reason: "entry must be a mapping"}
	}

	var raw rawEntry
	if err := node.Decode(&raw); err != nil {
		return nil, &CatalogParseError{Index: i, Reason: "invalid entry", Err: err}
	}

	fail := func(id, reason string) error {
		return &CatalogParseError{Index: i, ID: id, Reason: reason}
	}

	if raw.ID == nil || *raw.ID == "" {
		return nil, fail("", "missing id")
	}
	id := *raw.ID
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return nil, fail(id, `id must look like "<family>.<variant>.v<N>"`)
	}
	if raw.MethodFamily == nil || *raw.MethodFamily == "" {
		return nil, fail(id, "missing method_family")
	}
	if raw.Version == nil {
		return nil, fail(id, "missing version")
	}
	if n, _ := strconv.Atoi(m[2]); n != *raw.Version {
		return nil, fail(id, fmt.Sprintf("id suffix v%s does not match version %d", m[2], *raw.Version))
	}
	if raw.Template == nil {
		return nil, fail(id, "missing template")
	}
	if raw.Template.System == nil {
		return nil, fail(id, "missing template.system")
	}
	if raw.Template.User == nil || *raw.Template.User == "" {
		return nil, fail(id, "missing template.user")
	}

	e := &Entry{
		ID:           id,
		MethodFamily: *raw.MethodFamily,
		Version:      *raw.Version,
		System:       *raw.Template.System,
		User:         *raw.Template.User,
		IntroducedBy: raw.IntroducedBy,
		License:      raw.License,
		Authors:      raw.Authors,
		Tags:         raw.Tags,
		Notes:        raw.Notes,
	}
	if raw.Template.Assistant != nil {
		e.Assistant = *raw.Template.Assistant
	}
	e.system = compile(e.System)
	e.user = compile(e.User)
	e.assistant = compile(e.Assistant)
	return e, nil
}

// stringList accepts either a scalar or a sequence of scalars.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value != "" {
			*l = []string{node.Value}
		}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", node.Line)
	}
}
