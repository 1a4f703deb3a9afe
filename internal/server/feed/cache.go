package feed

import (
	"fmt"

	"hashwatch/internal/cache"
)

const (
	TypeRSS  = "rss"
	TypeAtom = "atom"
	TypeJSON = "json"
)

type CacheKey struct {
	Term string
	Type string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%s", k.Term, k.Type)
}

func termPrefix(term string) string {
	return term + ":"
}

func newCache(config cache.CacheConfig) *cache.Cache[CacheKey, string] {
	return cache.NewCache[CacheKey, string](config, CacheKey.String)
}
