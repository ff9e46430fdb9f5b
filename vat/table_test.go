package vat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/vat"
)

func TestTable(t *testing.T) {
	t.Parallel()

	t.Run("SaveRestore", func(t *testing.T) {
		t.Parallel()

		table := vat.NewTable("localhost")
		ctx := context.Background()

		cap := struct{ name string }{name: "cap"}
		ref, unsaver, err := table.Save(ctx, cap)
		require.NoError(t, err)
		require.NotEmpty(t, ref)
		require.Equal(t, 1, table.Len())

		got, err := table.Restore(ctx, ref)
		require.NoError(t, err)
		require.Equal(t, cap, got)

		require.NoError(t, unsaver.Release(ctx))
		require.Zero(t, table.Len())

		_, err = table.Restore(ctx, ref)
		require.ErrorIs(t, err, vat.ErrNotFound)

		// Release is one-shot; repeating it is harmless.
		require.NoError(t, unsaver.Release(ctx))
	})

	t.Run("FixedToken", func(t *testing.T) {
		t.Parallel()

		table := vat.NewTable("localhost")
		ctx := context.Background()

		ref, _, err := table.Save(ctx, "payload", vat.WithToken("fixed"))
		require.NoError(t, err)
		require.Equal(t, vat.SturdyRef("fixed"), ref)
	})

	t.Run("RestoreByURL", func(t *testing.T) {
		t.Parallel()

		table := vat.NewTable("example.com")
		ctx := context.Background()

		ref, _, err := table.Save(ctx, "payload", vat.WithToken("tok"))
		require.NoError(t, err)

		url := table.URL(ref)
		require.Equal(t, "flowmesh://example.com/tok", url)

		got, err := table.Restore(ctx, vat.SturdyRef(url))
		require.NoError(t, err)
		require.Equal(t, "payload", got)
	})
}
