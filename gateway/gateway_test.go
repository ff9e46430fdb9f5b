package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lthibault/log"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/gateway"
	"github.com/flowmesh/flowmesh/vat"
)

type capability struct{ name string }

func newGateway(t *testing.T, keepAlive time.Duration) (*gateway.Gateway, *vat.Table) {
	t.Helper()

	table := vat.NewTable("localhost")
	gw := &gateway.Gateway{
		Log:       log.New(),
		Restorer:  table,
		KeepAlive: keepAlive,
	}
	require.NoError(t, gw.Setup())

	return gw, table
}

func TestRegister(t *testing.T) {
	t.Parallel()

	t.Run("RandomID", func(t *testing.T) {
		t.Parallel()

		gw, _ := newGateway(t, time.Minute)
		ctx := context.Background()

		cap := &capability{name: "svc"}
		ref, hb, interval, err := gw.Register(ctx, cap, nil)
		require.NoError(t, err)
		require.NotEmpty(t, ref)
		require.NotNil(t, hb)
		require.Equal(t, time.Minute, interval)

		got, err := gw.Restore(ctx, ref)
		require.NoError(t, err)
		require.Same(t, cap, got)
	})

	t.Run("DeterministicSeed", func(t *testing.T) {
		t.Parallel()

		gw, _ := newGateway(t, time.Minute)
		ctx := context.Background()

		seed := []byte("super secret seed")

		ref1, _, _, err := gw.Register(ctx, &capability{name: "a"}, seed)
		require.NoError(t, err)

		ref2, _, _, err := gw.Register(ctx, &capability{name: "b"}, seed)
		require.NoError(t, err)
		require.Equal(t, ref1, ref2)

		// Extending the seed changes the derived id.
		ref3, _, _, err := gw.Register(ctx, &capability{name: "c"},
			append(seed, 0x00))
		require.NoError(t, err)
		require.NotEqual(t, ref1, ref3)
	})

	t.Run("ReRegisterReplacesOld", func(t *testing.T) {
		t.Parallel()

		gw, table := newGateway(t, time.Minute)
		ctx := context.Background()

		seed := []byte("stable identity")

		old := &capability{name: "old"}
		ref, _, _, err := gw.Register(ctx, old, seed)
		require.NoError(t, err)

		fresh := &capability{name: "fresh"}
		_, _, _, err = gw.Register(ctx, fresh, seed)
		require.NoError(t, err)

		got, err := table.Restore(ctx, ref)
		require.NoError(t, err)
		require.Same(t, fresh, got)
		require.Equal(t, 1, gw.Len())
	})

	t.Run("SaveFailure", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		gw := &gateway.Gateway{
			Log:      log.New(),
			Restorer: failingRestorer{err: boom},
		}
		require.NoError(t, gw.Setup())

		_, _, _, err := gw.Register(context.Background(), &capability{}, nil)
		require.ErrorIs(t, err, boom)
		require.Zero(t, gw.Len())
	})
}

func TestGC(t *testing.T) {
	t.Parallel()

	t.Run("SilentRegistrationEvicted", func(t *testing.T) {
		t.Parallel()

		gw, table := newGateway(t, 20*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ref, _, _, err := gw.Register(ctx, &capability{}, nil)
		require.NoError(t, err)

		go gw.Serve(ctx)

		// Registration starts with one unit of liveness, so eviction
		// takes two sweeps without a beat.
		require.Eventually(t, func() bool {
			return gw.Len() == 0
		}, 5*time.Second, 10*time.Millisecond)

		_, err = table.Restore(ctx, ref)
		require.ErrorIs(t, err, vat.ErrNotFound)
	})

	t.Run("BeatKeepsAlive", func(t *testing.T) {
		t.Parallel()

		gw, _ := newGateway(t, 20*time.Millisecond)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		_, hb, interval, err := gw.Register(ctx, &capability{}, nil)
		require.NoError(t, err)

		go gw.Serve(ctx)
		go gateway.BeatLoop(ctx, hb, interval)

		time.Sleep(300 * time.Millisecond)
		require.Equal(t, 1, gw.Len())
	})
}

type failingRestorer struct {
	err error
}

func (f failingRestorer) Save(context.Context, any, ...vat.SaveOption) (vat.SturdyRef, vat.Unsaver, error) {
	return "", nil, f.err
}

func (f failingRestorer) Restore(context.Context, vat.SturdyRef) (any, error) {
	return nil, f.err
}

func (failingRestorer) URL(ref vat.SturdyRef) string {
	return string(ref)
}
