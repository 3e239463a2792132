package bm25

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/queryforge/internal/dataset"
)

// indexCache shares built indexes between searchers over the same corpus so
// that a long-running server does not rebuild them per request.
var indexCache = struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}{entries: make(map[string]*cacheEntry)}

type cacheEntry struct {
	once sync.Once
	idx  *index
	err  error
}

func cachedIndex(path, idField string, answerKeys []string, stopwords bool, logger *zap.Logger) (*index, error) {
	key := fmt.Sprintf("%s|%s|%s|%t", path, idField, strings.Join(answerKeys, "|"), stopwords)

	indexCache.mu.Lock()
	e, ok := indexCache.entries[key]
	if !ok {
		e = &cacheEntry{}
		indexCache.entries[key] = e
	}
	indexCache.mu.Unlock()

	e.once.Do(func() {
		docs, err := dataset.ReadCorpus(path, dataset.CorpusOptions{IDField: idField, AnswerKeys: answerKeys}, logger)
		if err != nil {
			e.err = err
			return
		}
		e.idx = buildIndex(docs, stopwords)
		logger.Info("bm25 index built",
			zap.String("path", path), zap.Int("docs", len(docs)), zap.Int("terms", len(e.idx.postings)))
	})
	if e.err != nil {
		indexCache.mu.Lock()
		delete(indexCache.entries, key)
		indexCache.mu.Unlock()
	}
	return e.idx, e.err
}
