package gatewayd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func keepAliveFor(t *testing.T, args ...string) time.Duration {
	t.Helper()

	var d time.Duration
	app := &cli.App{
		Commands: []*cli.Command{{
			Name:  "gateway",
			Flags: Command().Flags,
			Action: func(c *cli.Context) error {
				d = keepAlive(c)
				return nil
			},
		}},
	}

	require.NoError(t, app.Run(append([]string{"flowmesh", "gateway"}, args...)))

	return d
}

func TestKeepAlive(t *testing.T) {
	t.Parallel()

	t.Run("Default", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, 600*time.Second, keepAliveFor(t))
	})

	t.Run("Explicit", func(t *testing.T) {
		t.Parallel()

		require.Equal(t, 30*time.Second,
			keepAliveFor(t, "-t", "30"))
	})

	t.Run("NegativeClampedToZero", func(t *testing.T) {
		t.Parallel()

		require.Zero(t, keepAliveFor(t, "--secs_keep_alive_timeout=-5"))
	})
}
