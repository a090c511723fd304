package wire_test

import (
	"net"
	"testing"

	"github.com/jroosing/hydrareq/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRecordRoundTrip(t *testing.T) {
	h := wire.NewRRHeader("example.com", wire.ClassIN, 300)
	rec := wire.NewIPRecord(h, net.ParseIP("192.0.2.1"))
	assert.Equal(t, wire.TypeA, rec.Type())

	b, err := wire.MarshalRecord(rec)
	require.NoError(t, err)

	off := 0
	got, err := wire.ParseRecord(b, &off)
	require.NoError(t, err)
	ip, ok := got.(*wire.IPRecord)
	require.True(t, ok)
	assert.True(t, ip.Addr.Equal(net.ParseIP("192.0.2.1")))
	assert.Equal(t, "example.com", ip.Header().Name)
	assert.Equal(t, uint32(300), ip.Header().TTL)
}

func TestIPv6RecordType(t *testing.T) {
	rec := wire.NewIPRecord(wire.RRHeader{}, net.ParseIP("2001:db8::1"))
	assert.Equal(t, wire.TypeAAAA, rec.Type())
}

func TestNameRecordRoundTrip(t *testing.T) {
	h := wire.NewRRHeader("www.example.com", wire.ClassIN, 60)
	rec := wire.NewCNAMERecord(h, "example.com")

	b, err := wire.MarshalRecord(rec)
	require.NoError(t, err)

	off := 0
	got, err := wire.ParseRecord(b, &off)
	require.NoError(t, err)
	nr, ok := got.(*wire.NameRecord)
	require.True(t, ok)
	assert.Equal(t, "example.com", nr.Target)
	assert.Equal(t, wire.TypeCNAME, nr.Type())
}

func TestOpaqueRecordRoundTrip(t *testing.T) {
	h := wire.NewRRHeader("example.com", wire.ClassIN, 60)
	rec := wire.NewOpaqueRecord(h, wire.TypeTXT, []byte{5, 'h', 'e', 'l', 'l', 'o'})

	b, err := wire.MarshalRecord(rec)
	require.NoError(t, err)

	off := 0
	got, err := wire.ParseRecord(b, &off)
	require.NoError(t, err)
	op, ok := got.(*wire.OpaqueRecord)
	require.True(t, ok)
	assert.Equal(t, []byte{5, 'h', 'e', 'l', 'l', 'o'}, op.Data)
}
