package ctxcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/helicase-ai/evidex/internal/db"
	"github.com/helicase-ai/evidex/internal/domain"
)

const cacheKeyPrefix = "ctx_cache:"

// KeyParams are the inputs that determine a cached pipeline result.
// Every field participates in the cache key; changing any one of them
// produces a different key.
type KeyParams struct {
	Query          string
	QueryType      domain.QueryType
	ExpansionCount int
	DocTypes       []string
	Hierarchical   bool
	CharBudget     int
}

// Key derives a deterministic cache key for a purpose tag and its parameters.
// Doc types are sorted so filter order does not fragment the cache. The query
// text participates verbatim: casing changes abbreviation expansion upstream,
// so case variants must not share an entry.
func Key(purposeTag string, p KeyParams) string {
	docTypes := append([]string(nil), p.DocTypes...)
	sort.Strings(docTypes)

	var sb strings.Builder
	sb.WriteString(purposeTag)
	sb.WriteString(":")
	sb.WriteString(p.Query)
	sb.WriteString("|type=")
	sb.WriteString(string(p.QueryType))
	sb.WriteString("|exp=")
	sb.WriteString(strconv.Itoa(p.ExpansionCount))
	sb.WriteString("|docs=")
	sb.WriteString(strings.Join(docTypes, ","))
	sb.WriteString("|hier=")
	sb.WriteString(strconv.FormatBool(p.Hierarchical))
	sb.WriteString("|budget=")
	sb.WriteString(strconv.Itoa(p.CharBudget))

	h := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(h[:])
}

// store is the consumer interface for the context cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores assembled context packages in a key-value store.
type Cache struct {
	store      store
	keyPrefix  string
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a context package cache. ttl should be the medium TTL class:
// pipeline results depend on corpus content and go stale faster than
// embeddings.
func New(s store, keyPrefix string, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	return &Cache{
		store:      s,
		keyPrefix:  keyPrefix + cacheKeyPrefix,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Get returns a cached context package, or ok=false on miss or any cache
// failure. Cache errors degrade to a miss and never fail the request.
func (c *Cache) Get(ctx context.Context, key string) (domain.ContextPackage, bool) {
	data, err := c.store.Get(ctx, c.keyPrefix+key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to read context cache", zap.String("key", key), zap.Error(err))
		}
		c.incCache("miss")
		return domain.ContextPackage{}, false
	}

	var pkg domain.ContextPackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		c.logger.Warn("Failed to decode cached context", zap.String("key", key), zap.Error(err))
		c.incCache("miss")
		return domain.ContextPackage{}, false
	}

	c.incCache("hit")
	pkg.FromCache = true
	return pkg, true
}

// Set stores a context package. Write failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key string, pkg domain.ContextPackage) {
	data, err := json.Marshal(pkg)
	if err != nil {
		c.logger.Warn("Failed to encode context for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, c.keyPrefix+key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to write context cache", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues("context", result).Inc()
	}
}
