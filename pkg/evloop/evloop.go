// Package evloop implements a single-threaded, readiness-driven event
// loop: non-blocking socket contexts are registered with a read and/or
// write callback, dispatched as the kernel reports readiness, until a
// registered signal arrives or the last context drains.
//
// Readiness is sourced from an epoll instance via golang.org/x/sys/unix,
// the same syscall-wrapping style nestybox-sysbox-libs uses for
// Linux-specific primitives.
package evloop

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/pkg/ipc"
)

// Loop is a single-threaded epoll-driven dispatcher.
type Loop struct {
	epfd int

	mu       sync.Mutex
	contexts map[int]*ipc.SocketContext

	sigCh  chan os.Signal
	sigSet []os.Signal
	done   bool
}

// New creates an epoll-backed event loop.
func New() (*Loop, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindEventLoopInitFailed, "epoll_create1", err)
	}
	return &Loop{epfd: fd, contexts: make(map[int]*ipc.SocketContext)}, nil
}

// Add registers ctx for read/write readiness. ctx must already be in
// non-blocking mode (ipc.MakeNonblock).
func (l *Loop) Add(ctx *ipc.SocketContext) error {
	var events uint32 = unix.EPOLLIN
	if ctx.OnWrite != nil {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(ctx.Fd)}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, ctx.Fd, &ev); err != nil {
		return agenterr.Wrap(agenterr.KindEventLoopAddFailed, "epoll_ctl add", err)
	}
	l.mu.Lock()
	l.contexts[ctx.Fd] = ctx
	l.mu.Unlock()
	return nil
}

// Remove unregisters ctx; the loop exits once the last context is removed
// and ExitLoopOnSignal has not already ended the run.
func (l *Loop) Remove(ctx *ipc.SocketContext) {
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, ctx.Fd, nil)
	l.mu.Lock()
	delete(l.contexts, ctx.Fd)
	l.mu.Unlock()
}

// ExitLoopOnSignal arranges for Run to return once sig is delivered, after
// draining the callbacks that are ready at that moment. Services register
// SIGHUP, SIGTERM, SIGQUIT this way.
func (l *Loop) ExitLoopOnSignal(sigs ...os.Signal) {
	if l.sigCh == nil {
		l.sigCh = make(chan os.Signal, len(sigs))
	}
	l.sigSet = append(l.sigSet, sigs...)
	signal.Notify(l.sigCh, sigs...)
}

// Run dispatches readiness events until a registered signal arrives or the
// last context is unregistered.
func (l *Loop) Run() error {
	const maxEvents = 64
	events := make([]unix.EpollEvent, maxEvents)

	for {
		if l.sigCh != nil {
			select {
			case <-l.sigCh:
				l.done = true
			default:
			}
		}
		if l.done {
			return nil
		}

		l.mu.Lock()
		n := len(l.contexts)
		l.mu.Unlock()
		if n == 0 {
			return nil
		}

		nev, err := unix.EpollWait(l.epfd, events, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return agenterr.Wrap(agenterr.KindEventLoopRunFailed, "epoll_wait", err)
		}

		for i := 0; i < nev; i++ {
			fd := int(events[i].Fd)
			l.mu.Lock()
			ctx, ok := l.contexts[fd]
			l.mu.Unlock()
			if !ok {
				continue
			}
			if events[i].Events&unix.EPOLLIN != 0 && ctx.OnRead != nil {
				ctx.OnRead(ctx)
			}
			if events[i].Events&unix.EPOLLOUT != 0 && ctx.OnWrite != nil && ctx.Pending() {
				ctx.OnWrite(ctx)
			}
		}
	}
}

// Close releases the epoll descriptor.
func (l *Loop) Close() error {
	if l.sigCh != nil {
		signal.Stop(l.sigCh)
	}
	return syscall.Close(l.epfd)
}
