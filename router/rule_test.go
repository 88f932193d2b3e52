package router

import (
	"strings"
	"testing"

	"github.com/mohanson/veil/addr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoutingScenario reproduces §8 scenario 6.
func TestRoutingScenario(t *testing.T) {
	rules, err := ParseRuleList(strings.NewReader(
		"DOMAIN-SUFFIX,apple.com,PROXY\n" +
			"IP-CIDR,10.0.0.0/8,DIRECT\n" +
			"FINAL,REJECT\n",
	))
	require.NoError(t, err)
	m := NewMatcher(rules, nil, nil)

	policy, ok := m.Policy(addr.NewDomainPort("store.apple.com", 443))
	require.True(t, ok)
	assert.Equal(t, "PROXY", policy)

	policy, ok = m.Policy(addr.NewIPv4([4]byte{10, 1, 2, 3}, 80))
	require.True(t, ok)
	assert.Equal(t, "DIRECT", policy)

	policy, ok = m.Policy(addr.NewDomainPort("example.org", 80))
	require.True(t, ok)
	assert.Equal(t, "REJECT", policy)
}

func TestDomainSuffixBoundary(t *testing.T) {
	r := Rule{Kind: KindDomainSuffix, Expression: "apple.com", Policy: "PROXY"}
	matched, _ := r.evaluate(addr.NewDomainPort("apple.com", 443), nil, nil)
	assert.True(t, matched)
	matched, _ = r.evaluate(addr.NewDomainPort("store.apple.com", 443), nil, nil)
	assert.True(t, matched)
	matched, _ = r.evaluate(addr.NewDomainPort("fakeapple.com", 443), nil, nil)
	assert.False(t, matched)
}

func TestParseRuleLineDisabledAndComment(t *testing.T) {
	rule, ok, err := ParseRuleLine("# DOMAIN,example.com,PROXY // disabled for now")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rule.Disabled)
	assert.Equal(t, "disabled for now", rule.Comment)
	assert.Equal(t, KindDomain, rule.Kind)
}

func TestParseRuleLineFinalRequiresPolicy(t *testing.T) {
	_, _, err := ParseRuleLine("FINAL")
	require.Error(t, err)
}

func TestParseDomainSet(t *testing.T) {
	rules, err := ParseDomainSet(strings.NewReader("# comment\n.example.com\nexact.com\n"), "PROXY")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, KindDomainSuffix, rules[0].Kind)
	assert.Equal(t, "example.com", rules[0].Expression)
	assert.Equal(t, KindDomain, rules[1].Kind)
}
