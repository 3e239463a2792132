// Package config loads the queryforge YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the queryforge configuration shared by the CLI and the HTTP server.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Method    MethodConfig    `yaml:"method"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Searcher  SearcherConfig  `yaml:"searcher"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Redis     RedisConfig     `yaml:"redis"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LLMConfig holds the OpenAI-compatible provider settings.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	User    string `yaml:"user"`
	// Temperature and MaxTokens override every method's defaults when set.
	// An explicit temperature of 0 is kept.
	Temperature *float64       `yaml:"temperature"`
	MaxTokens   int            `yaml:"max_tokens"`
	Cache       LLMCacheConfig `yaml:"cache"`
	Budget      BudgetConfig   `yaml:"budget"`
}

// LLMCacheConfig enables the Redis response cache. Requires redis.addrs.
type LLMCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"` // 0 keeps entries forever
}

// BudgetConfig limits the tokens a provider may consume. Zero limits are
// unlimited. Counters persist in Redis when redis.addrs is set.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"`
	Action            string `yaml:"action"` // warn (default) or reject
}

// Enabled reports whether any limit is set.
func (b BudgetConfig) Enabled() bool {
	return b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0
}

// EmbeddingConfig budgets the embedding calls of dense searchers.
type EmbeddingConfig struct {
	Budget BudgetConfig `yaml:"budget"`
}

// RedisConfig holds the connection used by the response cache and the
// budget counters. Searchers configure their own connections.
type RedisConfig struct {
	Addrs          []string `yaml:"addrs"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	DB             int      `yaml:"db"`
	WaitTimeoutSec int      `yaml:"wait_timeout_sec"`
}

// MethodConfig selects the default reformulation method.
type MethodConfig struct {
	Name       string         `yaml:"name"`
	Params     map[string]any `yaml:"params"`
	NumThreads int            `yaml:"num_threads"`
}

// RetrievalConfig holds defaults for retrieval calls.
type RetrievalConfig struct {
	K          int `yaml:"k"`
	NumThreads int `yaml:"num_threads"`
}

// SearcherConfig names the default searcher adapter and its options.
type SearcherConfig struct {
	Type   string         `yaml:"type"`
	Kwargs map[string]any `yaml:"kwargs"`
}

// PromptsConfig points at a custom prompt catalog. Empty means the built-in one.
type PromptsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	// MaxQueries caps the batch size of one /v1/reformulate or /v1/retrieve call.
	MaxQueries int `yaml:"max_queries"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration after ${VAR} substitution, then applies
// defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Method.Name == "" {
		c.Method.Name = "genqr"
	}
	if c.Method.NumThreads <= 0 {
		c.Method.NumThreads = 1
	}
	if c.Retrieval.K <= 0 {
		c.Retrieval.K = 10
	}
	if c.Retrieval.NumThreads <= 0 {
		c.Retrieval.NumThreads = 16
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	// Batches of generations take minutes.
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxQueries <= 0 {
		c.HTTP.MaxQueries = 1000
	}
	if c.Redis.WaitTimeoutSec <= 0 {
		c.Redis.WaitTimeoutSec = 10
	}
	if c.LLM.Budget.Action == "" {
		c.LLM.Budget.Action = "warn"
	}
	if c.Embedding.Budget.Action == "" {
		c.Embedding.Budget.Action = "warn"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("llm.temperature must be between 0 and 2, got %g", *t)
	}
	if c.LLM.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens must be >= 0, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Cache.Enabled && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("llm.cache.enabled requires redis.addrs")
	}
	if c.LLM.Cache.TTLSec < 0 {
		return fmt.Errorf("llm.cache.ttl_sec must be >= 0, got %d", c.LLM.Cache.TTLSec)
	}
	if err := c.LLM.Budget.validate("llm.budget"); err != nil {
		return err
	}
	if err := c.Embedding.Budget.validate("embedding.budget"); err != nil {
		return err
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB)
	}
	if c.Searcher.Type == "" && len(c.Searcher.Kwargs) > 0 {
		return fmt.Errorf("searcher.kwargs is set but searcher.type is empty")
	}
	if c.Logging.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	return nil
}

func (b BudgetConfig) validate(name string) error {
	if b.DailyTokenLimit < 0 || b.MonthlyTokenLimit < 0 {
		return fmt.Errorf("%s limits must be >= 0", name)
	}
	switch b.Action {
	case "warn", "reject":
		return nil
	default:
		return fmt.Errorf("%s.action must be warn or reject, got %q", name, b.Action)
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
