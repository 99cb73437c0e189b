package pricefeed

import (
	"sync"
	"time"
)

// QuoteCache keeps recent quotes so repeated lookups within the TTL do not hit
// the exchange again.
type QuoteCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]Quote
	now     func() time.Time
}

func NewQuoteCache(ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &QuoteCache{
		ttl:     ttl,
		entries: make(map[string]Quote),
		now:     time.Now,
	}
}

// Get returns the cached quote if it has not expired.
func (c *QuoteCache) Get(secID string) (Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	quote, ok := c.entries[secID]
	if !ok {
		return Quote{}, false
	}
	if c.now().Sub(quote.FetchedAt) > c.ttl {
		delete(c.entries, secID)
		return Quote{}, false
	}
	return quote, true
}

// Put stores a quote under its security identifier.
func (c *QuoteCache) Put(quote Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[quote.SecID] = quote
}

// Clear drops every cached quote.
func (c *QuoteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Quote)
}
