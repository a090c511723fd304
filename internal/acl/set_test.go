package acl_test

import (
	"net/netip"
	"testing"

	"github.com/jroosing/hydrareq/internal/acl"
	"github.com/stretchr/testify/assert"
)

func TestSetMatchLongestPrefix(t *testing.T) {
	s := acl.NewSetFromPrefixes([]string{"10.0.0.0/8", "10.1.2.0/24"})

	assert.True(t, s.Match(netip.MustParseAddr("10.5.5.5")))
	assert.True(t, s.Match(netip.MustParseAddr("10.1.2.200")))
	assert.False(t, s.Match(netip.MustParseAddr("192.168.1.1")))
}

func TestSetMatchIPv6(t *testing.T) {
	s := acl.NewSetFromPrefixes([]string{"2001:db8::/32"})
	assert.True(t, s.Match(netip.MustParseAddr("2001:db8::1")))
	assert.False(t, s.Match(netip.MustParseAddr("2001:db9::1")))
}

func TestSetEmptyNeverMatches(t *testing.T) {
	s := acl.NewSet()
	assert.False(t, s.Match(netip.MustParseAddr("127.0.0.1")))
	assert.Equal(t, 0, s.Size())
}

func TestSetInvalidCIDRSkipped(t *testing.T) {
	s := acl.NewSetFromPrefixes([]string{"not-a-cidr", "10.0.0.0/8"})
	assert.Equal(t, 1, s.Size())
}

func TestSetInvalidAddrNeverMatches(t *testing.T) {
	s := acl.NewSetFromPrefixes([]string{"0.0.0.0/0"})
	var zero netip.Addr
	assert.False(t, s.Match(zero))
}
