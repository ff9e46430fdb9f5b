package ports_test

import (
	"context"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/channel"
	"github.com/flowmesh/flowmesh/ports"
	"github.com/flowmesh/flowmesh/vat"
)

// fixture saves one reader and two writers in a fresh table.
func fixture(t *testing.T) (*vat.Table, ports.Decl) {
	t.Helper()

	table := vat.NewTable("localhost")
	ctx := context.Background()

	in := channel.New()
	_, _, err := table.Save(ctx, in.Reader(), vat.WithToken("in-ref"))
	require.NoError(t, err)

	out := channel.New()
	_, _, err = table.Save(ctx, out.Writer(), vat.WithToken("out-ref"))
	require.NoError(t, err)

	_, _, err = table.Save(ctx, out.Writer(), vat.WithToken("out-ref-2"))
	require.NoError(t, err)

	return table, ports.Decl{
		In:  map[string]string{"input": "in"},
		Out: map[string]string{"output": "out"},
	}
}

func TestConnectFromConfig(t *testing.T) {
	t.Parallel()

	t.Run("ScalarPorts", func(t *testing.T) {
		t.Parallel()

		table, decl := fixture(t)
		c := ports.New(table, decl, nil)

		c.ConnectFromConfig(context.Background(), []byte(`
[ports.in.in]
sr = "in-ref"

[ports.out.out]
sr = "out-ref"
`))

		require.True(t, c.IsInConnected("input"))
		require.NotNil(t, c.In("input"))
		require.True(t, c.IsOutConnected("output"))
		require.NotNil(t, c.Out("output"))
	})

	t.Run("ArrayOutPort", func(t *testing.T) {
		t.Parallel()

		table, decl := fixture(t)
		c := ports.New(table, decl, nil)

		c.ConnectFromConfig(context.Background(), []byte(`
[[ports.out.out]]
sr = "out-ref"

[[ports.out.out]]
sr = "out-ref-2"
`))

		require.Equal(t, 2, c.ArrOutLen("output"))
		require.NotNil(t, c.ArrOut("output", 0))
		require.NotNil(t, c.ArrOut("output", 1))
		require.True(t, c.IsArrOutConnected("output", 0))
		require.True(t, c.IsArrOutConnected("output", 1))
		require.Nil(t, c.ArrOut("output", 2))
	})

	t.Run("MalformedDocument", func(t *testing.T) {
		t.Parallel()

		table, decl := fixture(t)
		c := ports.New(table, decl, nil)

		c.ConnectFromConfig(context.Background(), []byte(`[ports.in.in`))

		require.False(t, c.IsInConnected("input"))
		require.False(t, c.IsOutConnected("output"))
	})

	t.Run("UnknownNameIgnored", func(t *testing.T) {
		t.Parallel()

		table, decl := fixture(t)
		c := ports.New(table, decl, nil)

		c.ConnectFromConfig(context.Background(), []byte(`
[ports.in.bogus]
sr = "in-ref"
`))

		require.False(t, c.IsInConnected("input"))
	})

	t.Run("UnresolvableRefLeavesPortDisconnected", func(t *testing.T) {
		t.Parallel()

		table, decl := fixture(t)
		c := ports.New(table, decl, nil)

		c.ConnectFromConfig(context.Background(), []byte(`
[ports.in.in]
sr = "no-such-ref"

[ports.out.out]
sr = "out-ref"
`))

		require.False(t, c.IsInConnected("input"))
		require.True(t, c.IsOutConnected("output"))
	})

	t.Run("WrongCapabilityType", func(t *testing.T) {
		t.Parallel()

		table, decl := fixture(t)
		c := ports.New(table, decl, nil)

		// in-ref resolves to a reader; binding it to an out-port fails.
		c.ConnectFromConfig(context.Background(), []byte(`
[ports.out.out]
sr = "in-ref"
`))

		require.False(t, c.IsOutConnected("output"))
	})
}

func TestConnectFromPortInfos(t *testing.T) {
	t.Parallel()

	table, decl := fixture(t)
	ctx := context.Background()

	payload, err := cbor.Marshal(ports.PortInfos{
		InPorts: []ports.PortInfo{
			{Name: "in", SR: "in-ref"},
			{Name: "bogus", SR: "in-ref"},
		},
		OutPorts: []ports.PortInfo{
			{Name: "out", SRs: []string{"out-ref", "no-such-ref", "out-ref-2"}},
		},
	})
	require.NoError(t, err)

	// The bootstrap channel delivers the infos as a data message.
	boot := channel.New()
	_, _, err = table.Save(ctx, boot.Reader(), vat.WithToken("bootstrap"))
	require.NoError(t, err)

	msg, err := channel.Data(payload)
	require.NoError(t, err)
	require.NoError(t, boot.Writer().Write(ctx, msg))

	c := ports.New(table, decl, nil)
	require.NoError(t, c.ConnectFromPortInfos(ctx, "bootstrap"))

	require.True(t, c.IsInConnected("input"))

	// Failed slots hold their index so siblings stay aligned.
	require.Equal(t, 3, c.ArrOutLen("output"))
	require.True(t, c.IsArrOutConnected("output", 0))
	require.False(t, c.IsArrOutConnected("output", 1))
	require.True(t, c.IsArrOutConnected("output", 2))
	require.Nil(t, c.ArrOut("output", 1))
}

func TestCloseOutPorts(t *testing.T) {
	t.Parallel()

	table, decl := fixture(t)
	c := ports.New(table, decl, nil)
	ctx := context.Background()

	c.ConnectFromConfig(ctx, []byte(`
[ports.out.out]
sr = "out-ref"
`))
	require.True(t, c.IsOutConnected("output"))

	c.CloseOutPorts(ctx)
	require.False(t, c.IsOutConnected("output"))
}

func TestSetInDisconnected(t *testing.T) {
	t.Parallel()

	table, decl := fixture(t)
	c := ports.New(table, decl, nil)
	ctx := context.Background()

	c.ConnectFromConfig(ctx, []byte(`
[ports.in.in]
sr = "in-ref"
`))
	require.True(t, c.IsInConnected("input"))

	c.SetInDisconnected("input")
	require.False(t, c.IsInConnected("input"))
	require.Nil(t, c.In("input"))
}
