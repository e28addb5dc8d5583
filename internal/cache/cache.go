// Handles in-memory, time-bounded memoization of upstream calls
package cache

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Policy names a key namespace and the time-to-live of its entries.
// All policies sharing a namespace must use the same TTL.
type Policy struct {
	Namespace string
	TTL       time.Duration
}

func (p Policy) String() string {
	return fmt.Sprintf("%s(%s)", p.Namespace, p.TTL)
}

// Cache holds one expiring bucket per policy namespace
type Cache struct {
	capacity int

	mu      sync.Mutex
	buckets map[string]*expirable.LRU[string, any]

	group singleflight.Group
}

// New creates an empty cache. Capacity bounds each namespace; zero means unbounded.
func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		buckets:  make(map[string]*expirable.LRU[string, any]),
	}
}

func (c *Cache) bucket(p Policy) *expirable.LRU[string, any] {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[p.Namespace]
	if !ok {
		b = expirable.NewLRU[string, any](c.capacity, nil, p.TTL)
		c.buckets[p.Namespace] = b
	}
	return b
}

// Key builds the entry key of an argument tuple. Strings are quoted so a
// separator inside a user-supplied name cannot collide with another tuple.
func Key(args ...any) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		if s, ok := arg.(string); ok {
			parts[i] = strconv.Quote(s)
			continue
		}
		parts[i] = fmt.Sprintf("%v", arg)
	}
	return strings.Join(parts, "|")
}

// Get returns a live entry. Expired entries are never returned.
func (c *Cache) Get(p Policy, args ...any) (any, bool) {
	return c.bucket(p).Get(Key(args...))
}

// Set stores value under the argument tuple with the policy TTL
func (c *Cache) Set(p Policy, value any, args ...any) {
	c.bucket(p).Add(Key(args...), value)
}

// Invalidate drops the entry for the argument tuple, if any
func (c *Cache) Invalidate(p Policy, args ...any) {
	c.bucket(p).Remove(Key(args...))
}

// Len reports the number of live entries in a namespace
func (c *Cache) Len(p Policy) int {
	return c.bucket(p).Len()
}
