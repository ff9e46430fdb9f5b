package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeededUUID(t *testing.T) {
	t.Parallel()

	id := seededUUID([]byte("seed"))
	require.Equal(t, id, seededUUID([]byte("seed")))
	require.NotEqual(t, id, seededUUID([]byte("seed2")))

	require.Equal(t, byte(0x40), id[6]&0xf0, "version nibble")
	require.Equal(t, byte(0x80), id[8]&0xc0, "variant bits")
}
