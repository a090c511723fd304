package wire_test

import (
	"testing"

	"github.com/jroosing/hydrareq/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionRoundTrip(t *testing.T) {
	q := wire.Question{Name: "Example.COM", Type: wire.TypeA, Class: wire.ClassIN}
	b, err := q.Marshal()
	require.NoError(t, err)

	off := 0
	got, err := wire.ParseQuestion(b, &off)
	require.NoError(t, err)
	assert.Equal(t, "example.com", got.Name)
	assert.Equal(t, wire.TypeA, got.Type)
	assert.Equal(t, wire.ClassIN, got.Class)
	assert.Equal(t, len(b), off)
}
