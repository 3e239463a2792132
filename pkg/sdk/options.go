package queryforge

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/queryforge/internal/llm"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	llm     LLM
	openai  bool
	baseURL string
	apiKey  string
	model   string

	temperature *float64
	maxTokens   int
	numThreads  int

	searcherType   string
	searcherKwargs map[string]any
	promptPath     string

	dailyTokens   int64
	monthlyTokens int64
	rejectOverrun bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithOpenAI uses an OpenAI-compatible chat endpoint (OpenAI, vLLM, Ollama).
// An empty baseURL means api.openai.com. model is the default for calls
// that name none.
func WithOpenAI(baseURL, apiKey, model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.openai = true
		c.baseURL = baseURL
		c.apiKey = apiKey
		c.model = model
	})
}

// WithLLM uses a custom language model for every model name.
func WithLLM(l LLM) Option {
	return optionFunc(func(c *clientConfig) {
		c.llm = l
	})
}

// WithModel sets the default model name, for calls that name none.
func WithModel(model string) Option {
	return optionFunc(func(c *clientConfig) {
		c.model = model
	})
}

// WithTemperature overrides every method's sampling temperature.
// Zero requests greedy decoding.
func WithTemperature(t float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.temperature = llm.Temperature(t)
	})
}

// WithMaxTokens overrides every method's completion length. Zero keeps the method defaults.
func WithMaxTokens(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxTokens = n
	})
}

// WithThreads sets the default number of queries processed concurrently.
func WithThreads(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.numThreads = n
	})
}

// WithSearcher sets the default searcher: a registered type (bm25,
// redisearch, sqlite, qdrant, fusion) and its options.
func WithSearcher(typ string, kwargs map[string]any) Option {
	return optionFunc(func(c *clientConfig) {
		c.searcherType = typ
		c.searcherKwargs = kwargs
	})
}

// WithPromptCatalog loads prompts from a YAML file instead of the built-in catalog.
func WithPromptCatalog(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.promptPath = path
	})
}

// WithTokenBudget limits the tokens spent on the OpenAI-compatible endpoint.
// Zero limits are unlimited. With reject set an exhausted budget fails
// calls with ErrBudgetExceeded; otherwise it only logs.
func WithTokenBudget(daily, monthly int64, reject bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.dailyTokens = daily
		c.monthlyTokens = monthly
		c.rejectOverrun = reject
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
