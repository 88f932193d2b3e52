package router

import (
	"github.com/mohanson/veil/addr"
	"github.com/mohanson/veil/lib/lru"
)

// CachedMatcher memoizes Matcher.Policy results by destination string, the
// way the teacher's RouterLRU memoizes Choose results. It is adapted here to
// cache a (policy, ok) pair instead of a Road, and sized per the supplement
// documented for this router.
type CachedMatcher struct {
	pit *Matcher
	box *lru.Lru[string, policyResult]
}

type policyResult struct {
	policy string
	ok     bool
}

// NewCachedMatcher wraps m with an LRU of the given size (entries, not
// bytes). A size of 0 disables eviction (unbounded cache).
func NewCachedMatcher(m *Matcher, size int) *CachedMatcher {
	return &CachedMatcher{pit: m, box: lru.New[string, policyResult](size)}
}

// Policy returns the cached policy for dest if present, else evaluates and
// caches it. Only resolved (ok=true) results are cached, mirroring the
// teacher's "don't cache Puzzle" rule. An unresolved lookup here would mean
// a malformed rule list, not a transient condition worth remembering.
func (c *CachedMatcher) Policy(dest addr.Address) (string, bool) {
	key := dest.String()
	if v, found := c.box.GetExists(key); found {
		return v.policy, v.ok
	}
	policy, ok := c.pit.Policy(dest)
	if ok {
		c.box.Set(key, policyResult{policy: policy, ok: ok})
	}
	return policy, ok
}

// Reload swaps in a freshly built Matcher and drops the cache, so a rule-list
// update can never be served alongside stale cached decisions from the
// previous snapshot (§5 "Never mutate in place while served").
func (c *CachedMatcher) Reload(m *Matcher) {
	c.pit = m
	c.box = lru.New[string, policyResult](c.box.Size)
}
