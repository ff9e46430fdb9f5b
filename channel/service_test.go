package channel_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lthibault/log"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"

	"github.com/flowmesh/flowmesh/channel"
	"github.com/flowmesh/flowmesh/vat"
)

func TestServiceRegister(t *testing.T) {
	t.Parallel()

	table := vat.NewTable("localhost")
	svc := &channel.Service{
		Log:      log.New(),
		Restorer: table,
	}

	ctx := context.Background()
	ch := channel.New(channel.WithName("test"))

	snap, err := svc.Register(ctx, ch, []string{"rtok", ""}, []string{"wtok"})
	require.NoError(t, err)
	require.Len(t, snap.Readers, 2)
	require.Len(t, snap.Writers, 1)
	require.Equal(t, 1, svc.Len())

	// Fixed tokens resolve to the endpoints that were registered.
	obj, err := table.Resolve(ctx, "rtok")
	require.NoError(t, err)
	require.IsType(t, &channel.Reader{}, obj)

	obj, err = table.Resolve(ctx, "wtok")
	require.NoError(t, err)
	require.IsType(t, &channel.Writer{}, obj)

	var buf bytes.Buffer
	svc.WriteRefs(&buf, snap)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "channelSR=flowmesh://localhost/"))
	require.Equal(t, "\treaderSR=flowmesh://localhost/rtok", lines[1])
	require.Equal(t, "\twriterSR=flowmesh://localhost/wtok", lines[3])
}

func TestServiceExitWatcher(t *testing.T) {
	t.Parallel()

	svc := &channel.Service{
		Log:         log.New(),
		Restorer:    vat.NewTable("localhost"),
		ExitTimeout: time.Second,
	}

	ctx := context.Background()
	ch := channel.New()
	_, err := svc.Register(ctx, ch, nil, nil)
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		errs <- svc.Serve(ctx)
	}()

	// The first sweep sees an open channel and keeps serving.
	select {
	case err := <-errs:
		t.Fatalf("service exited early: %v", err)
	case <-time.After(1500 * time.Millisecond):
	}

	ch.Close(false)

	select {
	case err := <-errs:
		require.ErrorIs(t, err, suture.ErrTerminateSupervisorTree)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not exit after last channel closed")
	}

	require.Zero(t, svc.Len())
}
