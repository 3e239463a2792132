package queryforge

// Query is one input query. IDs must be unique within a call.
type Query struct {
	ID   string
	Text string
}

// Hit is a single retrieved document.
type Hit struct {
	DocID    string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Result is the reformulation of one query.
type Result struct {
	QueryID      string
	Original     string
	Reformulated string
	// Metadata always carries "method", "version" and "prompt_ids".
	Metadata map[string]any
}

// ReformulateOptions tune a Reformulate call.
type ReformulateOptions struct {
	// Model overrides the client's default model.
	Model string
	// Params are method options; "searcher_type" and "searcher_kwargs"
	// select the retriever of context-grounded methods.
	Params map[string]any
	// Contexts are pre-retrieved hits keyed by query id.
	Contexts map[string][]Hit
	// NumThreads overrides WithThreads.
	NumThreads int
}

// PromptInfo describes one catalog prompt.
type PromptInfo struct {
	ID           string
	MethodFamily string
	Version      int
	IntroducedBy string
	License      string
	Authors      []string
	Tags         []string
	Variables    []string
}
