// Package router implements the routing-rule matcher (C7): an ordered list
// of rules, each matching a destination by domain or IP criteria, resolving
// to a named outbound policy.
package router

import (
	"net"
	"strings"

	"github.com/mohanson/veil/addr"
)

// Kind is the tag of a routing rule's match criterion (§3 "Routing Rule").
type Kind int

const (
	KindDomain Kind = iota
	KindDomainSuffix
	KindDomainKeyword
	KindDomainSet
	KindIPCIDR
	KindGEOIP
	KindRuleSet
	KindFinal
)

func (k Kind) String() string {
	switch k {
	case KindDomain:
		return "DOMAIN"
	case KindDomainSuffix:
		return "DOMAIN-SUFFIX"
	case KindDomainKeyword:
		return "DOMAIN-KEYWORD"
	case KindDomainSet:
		return "DOMAIN-SET"
	case KindIPCIDR:
		return "IP-CIDR"
	case KindGEOIP:
		return "GEOIP"
	case KindRuleSet:
		return "RULE-SET"
	case KindFinal:
		return "FINAL"
	default:
		return "UNKNOWN"
	}
}

// Rule is one entry in a routing rule list. All variants share the
// disabled/expression/policy/comment fields; Kind selects how Expression is
// interpreted (§3).
type Rule struct {
	Disabled   bool
	Kind       Kind
	Expression string
	Policy     string
	Comment    string

	cidr     addr.CIDR   // populated for KindIPCIDR
	children []Rule      // populated for KindDomainSet / KindRuleSet by Loader.ResolveAll
}

// WithCIDR returns a copy of r with its IP-CIDR range parsed and attached.
// Used by the text-form parser once it recognizes an IP-CIDR rule.
func (r Rule) WithCIDR(c addr.CIDR) Rule {
	r.cidr = c
	return r
}

// WithChildren returns a copy of r with a resolved DOMAIN-SET/RULE-SET child
// list attached, each child's Policy already defaulted to r.Policy where the
// source line omitted one (§4.6 "parent's policy substituted").
func (r Rule) WithChildren(children []Rule) Rule {
	r.children = children
	return r
}

// GeoIP resolves an IP to an ISO country code. Callers that don't need
// GEOIP rules may pass a nil GeoIP to NewMatcher.
type GeoIP interface {
	Country(ip net.IP) (string, bool)
}

// Resolver looks up the IP addresses behind a domain name, used only when a
// CIDR-shaped rule (IP-CIDR, GEOIP, or a RULE-SET containing one) is
// evaluated against a domain-only destination (§4.6).
type Resolver interface {
	LookupHost(host string) ([]net.IP, error)
}

// netResolver is the default Resolver, backed by net.LookupIP.
type netResolver struct{}

func (netResolver) LookupHost(host string) ([]net.IP, error) { return net.LookupIP(host) }

// DefaultResolver resolves domains via the system resolver.
var DefaultResolver Resolver = netResolver{}

// Matcher evaluates an ordered rule list against a destination, per §4.6.
// The rule slice is treated as an immutable snapshot: CachedMatcher.Reload
// swaps in a new Matcher rather than mutating rules in place (§5
// "Shared-resource policy"), so a Matcher can be read concurrently from many
// connection goroutines.
type Matcher struct {
	rules    []Rule
	geoip    GeoIP
	resolver Resolver
}

// NewMatcher builds a Matcher over rules. geoip may be nil if no GEOIP rule
// is present; resolver may be nil to use DefaultResolver.
func NewMatcher(rules []Rule, geoip GeoIP, resolver Resolver) *Matcher {
	if resolver == nil {
		resolver = DefaultResolver
	}
	return &Matcher{rules: rules, geoip: geoip, resolver: resolver}
}

// Policy evaluates dest against the rule list, first-match-wins, and
// returns the matching policy name. A well-formed rule list always ends in
// a FINAL rule, so this never returns an empty policy with ok=false in
// practice; ok is false only if the list is malformed (no FINAL present).
func (m *Matcher) Policy(dest addr.Address) (policy string, ok bool) {
	return matchRules(m.rules, dest, m.geoip, m.resolver)
}

// matchRules is the recursive core shared by Matcher.Policy and the
// RULE-SET/DOMAIN-SET child-list evaluation.
func matchRules(rules []Rule, dest addr.Address, geoip GeoIP, resolver Resolver) (string, bool) {
	for _, r := range rules {
		if r.Disabled {
			continue
		}
		if matched, policy := r.evaluate(dest, geoip, resolver); matched {
			if policy == "" {
				policy = r.Policy
			}
			return policy, true
		}
	}
	return "", false
}

func (r Rule) evaluate(dest addr.Address, geoip GeoIP, resolver Resolver) (matched bool, policy string) {
	switch r.Kind {
	case KindFinal:
		return true, r.Policy
	case KindDomain:
		return dest.Family() == addr.FamilyDomain && dest.Host() == r.Expression, r.Policy
	case KindDomainSuffix:
		if dest.Family() != addr.FamilyDomain {
			return false, ""
		}
		host := dest.Host()
		return host == r.Expression || strings.HasSuffix(host, "."+r.Expression), r.Policy
	case KindDomainKeyword:
		return dest.Family() == addr.FamilyDomain && strings.Contains(dest.Host(), r.Expression), r.Policy
	case KindDomainSet:
		p, ok := matchRules(r.children, dest, geoip, resolver)
		return ok, p
	case KindIPCIDR:
		ip, ok := resolveIP(dest, resolver)
		if !ok {
			return false, ""
		}
		return r.cidr.Contains(ip), r.Policy
	case KindGEOIP:
		if geoip == nil {
			return false, ""
		}
		ip, ok := resolveIP(dest, resolver)
		if !ok {
			return false, ""
		}
		country, ok := geoip.Country(ip)
		return ok && strings.EqualFold(country, r.Expression), r.Policy
	case KindRuleSet:
		p, ok := matchRules(r.children, dest, geoip, resolver)
		return ok, p
	default:
		return false, ""
	}
}

// resolveIP returns dest's IP directly, or resolves it via resolver when
// dest is domain-only, per §4.6's DNS lookup hook. Resolution failure means
// the calling IP-shaped rule does not match.
func resolveIP(dest addr.Address, resolver Resolver) (net.IP, bool) {
	if dest.Family() != addr.FamilyDomain {
		return dest.IP(), true
	}
	ips, err := resolver.LookupHost(dest.Host())
	if err != nil || len(ips) == 0 {
		return nil, false
	}
	return ips[0], true
}
