package addr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainPortRoundtrip(t *testing.T) {
	a := NewDomainPort("example.com", 443)
	assert.Equal(t, FamilyDomain, a.Family())
	assert.Equal(t, "example.com:443", a.String())
}

func TestIPv4(t *testing.T) {
	a := NewIPv4([4]byte{192, 168, 1, 1}, 80)
	assert.Equal(t, FamilyIPv4, a.Family())
	assert.Equal(t, "192.168.1.1:80", a.String())
}

func TestIPv6(t *testing.T) {
	ip := net.ParseIP("::1").To16()
	var o [16]byte
	copy(o[:], ip)
	a := NewIPv6(o, 22)
	assert.Equal(t, FamilyIPv6, a.Family())
	assert.Equal(t, "[::1]:22", a.String())
}

func TestEqual(t *testing.T) {
	a := NewDomainPort("a.com", 80)
	b := NewDomainPort("a.com", 80)
	c := NewDomainPort("a.com", 81)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestCIDRContainsV4(t *testing.T) {
	c, err := ParseCIDR("10.0.0.0/8")
	require.NoError(t, err)
	assert.True(t, c.Contains(net.ParseIP("10.1.2.3")))
	assert.False(t, c.Contains(net.ParseIP("11.0.0.1")))
	assert.False(t, c.Contains(net.ParseIP("::1")))
}

func TestCIDRContainsV6(t *testing.T) {
	c, err := ParseCIDR("2001:db8::/32")
	require.NoError(t, err)
	assert.True(t, c.Contains(net.ParseIP("2001:db8::1")))
	assert.False(t, c.Contains(net.ParseIP("2001:db9::1")))
}

func TestCIDRBoundary(t *testing.T) {
	c, err := ParseCIDR("192.168.1.0/24")
	require.NoError(t, err)
	assert.True(t, c.Contains(net.ParseIP("192.168.1.0")))
	assert.True(t, c.Contains(net.ParseIP("192.168.1.255")))
	assert.False(t, c.Contains(net.ParseIP("192.168.2.0")))
}
