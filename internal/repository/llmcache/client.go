// Package llmcache replays chat completions from Redis so that a rerun of
// the same method, model and sampling settings costs no provider calls.
package llmcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/db"
	"github.com/kailas-cloud/queryforge/internal/domain"
	"github.com/kailas-cloud/queryforge/internal/llm"
)

var cacheKeyPrefix = domain.KeyPrefix + "llm_cache:"

// store is the consumer interface for the response cache.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Client caches the completions of an inner client bound to model.
type Client struct {
	inner      llm.Client
	model      string
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

var _ llm.MultiClient = (*Client)(nil)

// New creates a caching decorator. ttl <= 0 keeps entries forever.
// cacheTotal is a counter vec with label "result" ("hit"/"miss") and may be nil.
func New(
	inner llm.Client,
	model string,
	s store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		inner:      inner,
		model:      model,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Chat implements llm.Client.
func (c *Client) Chat(ctx context.Context, msgs []domain.Message, temperature float64, maxTokens int) (string, error) {
	out, err := c.ChatN(ctx, msgs, temperature, maxTokens, 1)
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// ChatN implements llm.MultiClient. A hit replays all n completions.
func (c *Client) ChatN(
	ctx context.Context, msgs []domain.Message, temperature float64, maxTokens, n int,
) ([]string, error) {
	n = max(1, n)
	key, err := c.cacheKey(msgs, temperature, maxTokens, n)
	if err != nil {
		return nil, err
	}

	if out, ok := c.getFromCache(ctx, key, n); ok {
		c.incCache("hit")
		return out, nil
	}
	c.incCache("miss")

	var out []string
	if n == 1 {
		var text string
		text, err = c.inner.Chat(ctx, msgs, temperature, maxTokens)
		out = []string{text}
	} else {
		out, err = llm.ChatN(ctx, c.inner, msgs, temperature, maxTokens, n)
	}
	if err != nil {
		return nil, fmt.Errorf("uncached completion: %w", err)
	}

	c.putToCache(ctx, key, out)
	return out, nil
}

func (c *Client) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// cacheRequest is hashed into the cache key.
type cacheRequest struct {
	Model       string           `json:"model"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	N           int              `json:"n"`
	Messages    []domain.Message `json:"messages"`
}

func (c *Client) cacheKey(msgs []domain.Message, temperature float64, maxTokens, n int) (string, error) {
	data, err := json.Marshal(cacheRequest{
		Model:       c.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		N:           n,
		Messages:    msgs,
	})
	if err != nil {
		return "", fmt.Errorf("llm cache key: %w", err)
	}
	h := sha256.Sum256(data)
	return cacheKeyPrefix + hex.EncodeToString(h[:]), nil
}

func (c *Client) getFromCache(ctx context.Context, key string, n int) ([]string, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached completion", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var out []string
	if err := json.Unmarshal(data, &out); err != nil || len(out) != n {
		c.logger.Warn("Discarding malformed cached completion", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return out, true
}

func (c *Client) putToCache(ctx context.Context, key string, out []string) {
	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache completion", zap.String("key", key), zap.Error(err))
	}
}
