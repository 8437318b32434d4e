package web_search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/lumina/tools/web_search/brave"
	"github.com/mohammad-safakhou/lumina/tools/web_search/models"
	"github.com/mohammad-safakhou/lumina/tools/web_search/serper"
	"github.com/mohammad-safakhou/lumina/tools/web_search/tavily"
)

type WebSearcher interface {
	Search(ctx context.Context, q string, k int) (models.Response, error)
}

type Provider string

const (
	TavilyProvider Provider = "tavily"
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrMissingAPIKey       = errors.New("web search api key not configured")
)

// NewWebSearcher returns nil and ErrMissingAPIKey when no key is configured so
// callers can run without research.
func NewWebSearcher(provider Provider, apiKey string, timeout time.Duration) (WebSearcher, error) {
	if strings.TrimSpace(apiKey) == "" {
		switch provider {
		case TavilyProvider, SerperProvider, BraveProvider:
			return nil, ErrMissingAPIKey
		}
	}
	switch provider {
	case TavilyProvider:
		return tavily.New(apiKey, timeout), nil
	case SerperProvider:
		return serper.New(apiKey, timeout), nil
	case BraveProvider:
		return brave.New(apiKey, timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
}

// Cache is the subset of the redis client used for memoizing results.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cached memoizes responses per query and result count. Cache failures are
// logged and fall through to the wrapped searcher.
type Cached struct {
	next   WebSearcher
	cache  Cache
	ttl    time.Duration
	prefix string
	logger *log.Logger
}

func NewCached(next WebSearcher, cache Cache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cached{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		prefix: "websearch:",
		logger: log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}
}

func (c *Cached) key(q string, k int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", k, strings.ToLower(strings.TrimSpace(q)))))
	return c.prefix + hex.EncodeToString(sum[:16])
}

func (c *Cached) Search(ctx context.Context, q string, k int) (models.Response, error) {
	key := c.key(q, k)
	raw, err := c.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var resp models.Response
		if jerr := json.Unmarshal(raw, &resp); jerr == nil {
			return resp, nil
		}
		c.logger.Printf("discarding corrupt cache entry %s", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Printf("cache read failed: %v", err)
	}

	resp, err := c.next.Search(ctx, q, k)
	if err != nil {
		return models.Response{}, err
	}
	if b, jerr := json.Marshal(resp); jerr == nil {
		if serr := c.cache.Set(ctx, key, b, c.ttl).Err(); serr != nil {
			c.logger.Printf("cache write failed: %v", serr)
		}
	}
	return resp, nil
}
