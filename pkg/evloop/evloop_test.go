package evloop_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/blockwell/agentd/pkg/evloop"
	"github.com/blockwell/agentd/pkg/ipc"
	"github.com/stretchr/testify/require"
)

func TestLoopExitsWhenLastContextRemoved(t *testing.T) {
	l, err := evloop.New()
	require.NoError(t, err)
	defer l.Close()

	a, b, err := ipc.NewSocketpair()
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, ipc.MakeNonblock(a))

	ctx := ipc.NewSocketContext(a)
	closed := false
	ctx.OnRead = func(c *ipc.SocketContext) {
		// EOF on peer close: unregister ourselves.
		if !closed {
			closed = true
			l.Remove(c)
			c.Close()
		}
	}
	require.NoError(t, l.Add(ctx))

	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Close()
	}()

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not exit after last context removed")
	}
}

func TestExitLoopOnSignal(t *testing.T) {
	l, err := evloop.New()
	require.NoError(t, err)
	defer l.Close()

	a, b, err := ipc.NewSocketpair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()
	require.NoError(t, ipc.MakeNonblock(a))
	ctx := ipc.NewSocketContext(a)
	require.NoError(t, l.Add(ctx))

	l.ExitLoopOnSignal(syscall.SIGUSR1)

	done := make(chan error, 1)
	go func() { done <- l.Run() }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not exit on signal")
	}
}
