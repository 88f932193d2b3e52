package router

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"path/filepath"
	"strings"

	veil "github.com/mohanson/veil"
)

// maxResourceDepth bounds RULE-SET/DOMAIN-SET recursion (§9 "bounded
// recursion with a depth cap").
const maxResourceDepth = 8

// CycleError means a RULE-SET resource transitively referenced itself.
type CycleError struct{ Locator string }

func (e *CycleError) Error() string { return "router: cycle detected loading " + e.Locator }

// DepthExceededError means resource recursion exceeded maxResourceDepth.
type DepthExceededError struct{ Locator string }

func (e *DepthExceededError) Error() string { return "router: resource depth exceeded at " + e.Locator }

// ResourceLoader opens the byte stream a DOMAIN-SET or RULE-SET rule's
// Expression names. Expression is typically a "file://" path or an http(s)
// URL; the orchestrator supplies the concrete fetch behind this interface.
type ResourceLoader func(locator string) (io.ReadCloser, error)

// LocalName derives the local file name the design assigns an external
// resource (§3 "carry a local file name derived from the URL"): the
// filename part for a file:// locator, otherwise the SHA-1 hex of the URL.
func LocalName(locator string) string {
	if rest, ok := strings.CutPrefix(locator, "file://"); ok {
		return filepath.Base(rest)
	}
	sum := sha1.Sum([]byte(locator))
	return hex.EncodeToString(sum[:])
}

// Loader resolves DOMAIN-SET and RULE-SET rules into their children,
// detecting cycles via each resource's LocalName and capping recursion
// depth (§9 "forbid cycles ... detecting and refusing during resource
// load; otherwise bounded recursion with a depth cap").
type Loader struct {
	Fetch ResourceLoader
}

// NewLoader builds a Loader that fetches resources via fetch.
func NewLoader(fetch ResourceLoader) *Loader {
	return &Loader{Fetch: fetch}
}

// ResolveAll walks rules, replacing every DOMAIN-SET/RULE-SET with a copy
// carrying its resolved children, recursively.
func (l *Loader) ResolveAll(rules []Rule) ([]Rule, error) {
	return l.resolveAll(rules, map[string]bool{}, 0)
}

func (l *Loader) resolveAll(rules []Rule, seen map[string]bool, depth int) ([]Rule, error) {
	out := make([]Rule, len(rules))
	for i, r := range rules {
		switch r.Kind {
		case KindDomainSet, KindRuleSet:
			resolved, err := l.resolveOne(r, seen, depth)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		default:
			out[i] = r
		}
	}
	return out, nil
}

func (l *Loader) resolveOne(r Rule, seen map[string]bool, depth int) (Rule, error) {
	if depth >= maxResourceDepth {
		return Rule{}, &DepthExceededError{Locator: r.Expression}
	}
	name := LocalName(r.Expression)
	if seen[name] {
		return Rule{}, &CycleError{Locator: r.Expression}
	}
	child := map[string]bool{name: true}
	for k := range seen {
		child[k] = true
	}

	stream, err := l.Fetch(r.Expression)
	if err != nil {
		return Rule{}, veil.NewError(veil.KindResourceError, "router: fetch "+r.Expression, err)
	}
	defer stream.Close()

	var children []Rule
	if r.Kind == KindDomainSet {
		children, err = ParseDomainSet(stream, r.Policy)
	} else {
		children, err = parseRuleSetBody(stream, r.Policy)
	}
	if err != nil {
		return Rule{}, err
	}

	resolvedChildren, err := l.resolveAll(children, child, depth+1)
	if err != nil {
		return Rule{}, err
	}
	return r.WithChildren(resolvedChildren), nil
}

// parseRuleSetBody parses a RULE-SET file: full rule lines, where a child
// line that omits POLICY inherits the enclosing set's policy (§6 "the
// enclosing set's policy is appended if a child line omits one").
func parseRuleSetBody(r io.Reader, parentPolicy string) ([]Rule, error) {
	rules, err := ParseRuleList(r)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		if rules[i].Policy == "" {
			rules[i].Policy = parentPolicy
		}
	}
	return rules, nil
}
