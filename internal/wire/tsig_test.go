package wire_test

import (
	"testing"

	"github.com/jroosing/hydrareq/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyTSIG(t *testing.T) {
	key := wire.TSIGKey{Name: "key.example.com", Secret: []byte("0123456789abcdef0123456789abcdef")}

	query := wire.Packet{
		Header:    wire.Header{ID: 0x55AA, Flags: wire.RDFlag},
		Questions: []wire.Question{{Name: "example.com", Type: wire.TypeA, Class: wire.ClassIN}},
	}

	signedWire, queryMAC, err := wire.SignQuery(query, key, wire.RenderOptions{}, 1_700_000_000, 300)
	require.NoError(t, err)
	require.NotEmpty(t, queryMAC)

	parsed, err := wire.ParsePacket(signedWire)
	require.NoError(t, err)
	require.Len(t, parsed.Additionals, 1)
	assert.Equal(t, wire.TypeTSIG, parsed.Additionals[0].Type())

	// Build a response echoing the query ID and sign it with the same key.
	// SignQuery does not chain from a prior MAC, so the response is verified
	// with no query MAC.
	response := wire.Packet{
		Header: wire.Header{ID: 0x55AA, Flags: wire.QRFlag | wire.RDFlag},
		Questions: []wire.Question{
			{Name: "example.com", Type: wire.TypeA, Class: wire.ClassIN},
		},
	}
	respUnsigned, err := wire.Render(response, wire.RenderOptions{})
	require.NoError(t, err)
	_ = respUnsigned

	respSigned, _, err := wire.SignQuery(response, key, wire.RenderOptions{}, 1_700_000_000, 300)
	require.NoError(t, err)

	err = wire.VerifyResponse(respSigned, key, nil)
	assert.NoError(t, err)
}

func TestVerifyTSIGFailsWithWrongKey(t *testing.T) {
	key := wire.TSIGKey{Name: "key.example.com", Secret: []byte("secret-one")}
	wrongKey := wire.TSIGKey{Name: "key.example.com", Secret: []byte("secret-two")}

	msg := wire.Packet{Header: wire.Header{ID: 7}}
	signed, _, err := wire.SignQuery(msg, key, wire.RenderOptions{}, 1_700_000_000, 300)
	require.NoError(t, err)

	err = wire.VerifyResponse(signed, wrongKey, nil)
	assert.Error(t, err)
}
