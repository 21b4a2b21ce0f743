package dom

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 256

// SelectorCache keeps compiled CSS selectors keyed by their source text
type SelectorCache struct {
	cache *lru.Cache[string, cascadia.Selector]
}

// NewSelectorCache - creates a cache holding up to size compiled selectors
func NewSelectorCache(size int) (*SelectorCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, cascadia.Selector](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create selector cache: %w", err)
	}
	return &SelectorCache{cache: c}, nil
}

// Compile - returns the compiled selector, compiling it on a miss
func (s *SelectorCache) Compile(selector string) (cascadia.Selector, error) {
	if sel, ok := s.cache.Get(selector); ok {
		return sel, nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	s.cache.Add(selector, sel)
	return sel, nil
}

// Len - number of cached selectors
func (s *SelectorCache) Len() int {
	return s.cache.Len()
}

var defaultSelectors = mustSelectorCache(defaultCacheSize)

func mustSelectorCache(size int) *SelectorCache {
	c, err := NewSelectorCache(size)
	if err != nil {
		panic(err)
	}
	return c
}
