// Package db defines the Redis contract behind the FT.SEARCH searcher, the
// LLM response cache and the token budget counters.
package db

import (
	"context"
	"time"
)

// Store is the facade used by the redisearch searcher and the corpus indexer.
type Store interface {
	Pinger
	DocumentWriter
	IndexManager
	TextSearcher
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for pipelined HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// DocumentWriter stores corpus documents as hashes.
type DocumentWriter interface {
	HSetMulti(ctx context.Context, items []HashSetItem) error
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// TextSearcher runs full-text queries over an FT index.
type TextSearcher interface {
	SearchText(ctx context.Context, q *TextQuery) (*SearchResult, error)
}

// KVStore provides string keys for the LLM response cache and the budget counters.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}
