package channel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/channel"
)

func TestMsg(t *testing.T) {
	t.Parallel()

	t.Run("Text", func(t *testing.T) {
		t.Parallel()

		msg, err := channel.Text("hello, world!")
		require.NoError(t, err)
		require.Equal(t, channel.Value, msg.Which)
		require.Equal(t, "hello, world!", msg.Text())
	})

	t.Run("Data", func(t *testing.T) {
		t.Parallel()

		msg, err := channel.Data([]byte{0xde, 0xad, 0xbe, 0xef})
		require.NoError(t, err)
		require.Equal(t, channel.Value, msg.Which)
		require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, msg.Data())
	})

	t.Run("Done", func(t *testing.T) {
		t.Parallel()

		msg := channel.NewDone()
		require.Equal(t, channel.Done, msg.Which)
		require.False(t, msg.Ptr().IsValid())
	})
}
