// Package svc wires each private sub-command to the same thin shell:
// initialize an event loop, install shutdown signal handlers, register
// the inbound socket(s) in non-blocking mode with a method-dispatch
// callback, run the loop, dispose it, and report the loop's exit status.
//
// Grounded on gravwell's ingester service-lifecycle shape (one init,
// signal-driven shutdown, one run loop, clean teardown) adapted onto
// agentd's epoll-based pkg/evloop instead of gravwell's goroutine
// pipeline.
package svc

import (
	"os"
	"syscall"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/internal/alog"
	"github.com/blockwell/agentd/pkg/evloop"
	"github.com/blockwell/agentd/pkg/ipc"
)

// Shell is the common skeleton every private service sub-command runs
// inside. Callers build one, register their sockets via AddSocket, then
// call Run.
type Shell struct {
	Name string
	Log  *alog.Logger
	ID   agenterr.ServiceID

	loop *evloop.Loop
}

// New creates the event loop and installs the uniform shutdown signal
// set. New, AddSocket and Run each return an error with its own Kind
// (event-loop init, add, run) and the service name in its message.
// ExitCode maps every one of them to exit status 1, so the process exit
// status alone does not tell the failure stages apart.
func New(name string, id agenterr.ServiceID, log *alog.Logger) (*Shell, error) {
	loop, err := evloop.New()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindEventLoopInitFailed, name+": event loop init", err)
	}
	loop.ExitLoopOnSignal(syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	return &Shell{Name: name, Log: log, ID: id, loop: loop}, nil
}

// AddSocket wraps f as a non-blocking socket context and registers it
// with the loop, installing onRead/onWrite as its dispatch callbacks.
func (s *Shell) AddSocket(f *os.File, onRead ipc.ReadCallback, onWrite ipc.WriteCallback) (*ipc.SocketContext, error) {
	if err := ipc.MakeNonblock(f); err != nil {
		return nil, agenterr.Wrap(agenterr.KindSocketpairFailed, s.Name+": make-nonblock failed", err)
	}
	ctx := ipc.NewSocketContext(f)
	ctx.OnRead = onRead
	ctx.OnWrite = onWrite
	if err := s.loop.Add(ctx); err != nil {
		return nil, agenterr.Wrap(agenterr.KindEventLoopAddFailed, s.Name+": event loop add failed", err)
	}
	return ctx, nil
}

// Run drives the loop to completion and disposes it regardless of
// outcome.
func (s *Shell) Run() error {
	defer s.loop.Close()
	if err := s.loop.Run(); err != nil {
		return agenterr.Wrap(agenterr.KindEventLoopRunFailed, s.Name+": event loop run failed", err)
	}
	return nil
}

// ExitCode maps err (as returned by New/AddSocket/Run) to a process exit
// status: 0 on nil, 1 for any other failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
