package venue

import (
	"context"
	"strings"
	"sync"
)

// RulesCache memoizes per-instrument trading rules for the process lifetime.
// Rules are immutable once fetched, so concurrent duplicate fetches simply
// overwrite each other with the same value. There is no invalidation: a
// venue-side precision change requires a restart.
type RulesCache struct {
	gateway Gateway

	mu    sync.RWMutex
	rules map[string]InstrumentRules
}

func NewRulesCache(gateway Gateway) *RulesCache {
	return &RulesCache{
		gateway: gateway,
		rules:   make(map[string]InstrumentRules),
	}
}

// Get returns the cached rules for an instrument, fetching them on first use.
func (c *RulesCache) Get(ctx context.Context, instrument string) (InstrumentRules, error) {
	key := strings.ToUpper(strings.TrimSpace(instrument))

	c.mu.RLock()
	rules, ok := c.rules[key]
	c.mu.RUnlock()
	if ok {
		return rules, nil
	}

	rules, err := c.gateway.InstrumentRules(ctx, key)
	if err != nil {
		return InstrumentRules{}, err
	}
	c.mu.Lock()
	c.rules[key] = rules
	c.mu.Unlock()
	return rules, nil
}
