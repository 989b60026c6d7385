package schema

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/travis4dams/metaminer/pkg/question"
)

// Cache memoises compiled schemas by question set fingerprint.
type Cache struct {
	items *cache.Cache
}

// NewCache creates a cache whose entries expire after ttl. A non-positive
// ttl keeps entries forever.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		return &Cache{items: cache.New(cache.NoExpiration, 0)}
	}
	return &Cache{items: cache.New(ttl, 2*ttl)}
}

// Compile returns the cached schema for an equivalent set, compiling and
// storing it on a miss. Compile errors are not cached.
func (c *Cache) Compile(set *question.Set) (*Schema, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	key := Fingerprint(set)
	if v, ok := c.items.Get(key); ok {
		return v.(*Schema), nil
	}

	s, err := Compile(set)
	if err != nil {
		return nil, err
	}
	c.items.SetDefault(key, s)
	return s, nil
}

// Len returns the number of cached schemas, including expired ones not yet
// evicted.
func (c *Cache) Len() int { return c.items.ItemCount() }

// Flush removes every cached schema.
func (c *Cache) Flush() { c.items.Flush() }
