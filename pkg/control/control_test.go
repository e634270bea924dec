package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkwell-ai/fsobserve/pkg/sink"
)

func TestInitialiseStartStopTool(t *testing.T) {
	mem := sink.NewMemory()
	c := NewServer(Options{StateDir: t.TempDir(), Sink: mem})
	ctx := context.Background()

	_, initOut, err := c.handleInitialise(ctx, nil, InitialiseInput{WatchRoots: []string{t.TempDir()}})
	require.NoError(t, err)
	require.Equal(t, "initialising", initOut.State)

	_, startOut, err := c.handleStart(ctx, nil, struct{}{})
	require.NoError(t, err)
	require.Equal(t, "running", startOut.State)

	_, statusOut, err := c.handleStatus(ctx, nil, struct{}{})
	require.NoError(t, err)
	require.Equal(t, "running", statusOut.State)
	require.Equal(t, 1, statusOut.WatchedRoots)

	_, stopOut, err := c.handleStop(ctx, nil, struct{}{})
	require.NoError(t, err)
	require.Equal(t, "stopped", stopOut.State)
}

func TestStartRejectedWithoutInitialise(t *testing.T) {
	c := NewServer(Options{StateDir: t.TempDir()})
	_, _, err := c.handleStart(context.Background(), nil, struct{}{})
	require.Error(t, err)
}

func TestTriggerRescanRejectsUnknownRoot(t *testing.T) {
	c := NewServer(Options{StateDir: t.TempDir()})
	ctx := context.Background()

	root := t.TempDir()
	_, _, err := c.handleInitialise(ctx, nil, InitialiseInput{WatchRoots: []string{root}})
	require.NoError(t, err)
	_, _, err = c.handleStart(ctx, nil, struct{}{})
	require.NoError(t, err)
	defer c.Close()

	_, _, err = c.handleTriggerRescan(ctx, nil, TriggerRescanInput{Root: "/not/configured"})
	require.Error(t, err)

	_, out, err := c.handleTriggerRescan(ctx, nil, TriggerRescanInput{Root: root})
	require.NoError(t, err)
	require.Contains(t, out.Message, root)
}
