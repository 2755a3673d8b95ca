// Package procmgr implements process lifecycle primitives: start, stop,
// stop with options, and kill, over a tracked OS process record.
//
// Grounded on gravwell's manager/process.go process-supervision idiom
// (os/exec.Cmd plus syscall.SysProcAttr, signal-then-wait shutdown), but
// reshaped around an explicit Process record (pid, running flag, start
// function) rather than gravwell's restart-loop goroutine.
package procmgr

import (
	"errors"
	"os/exec"
	"sync"
	"syscall"

	"github.com/blockwell/agentd/internal/agenterr"
)

// InitFunc is expected to fork and exec, returning the started *exec.Cmd.
type InitFunc func() (*exec.Cmd, error)

// Process tracks one spawned child: its OS process, a running flag, and
// its start function.
type Process struct {
	mu      sync.Mutex
	init    InitFunc
	cmd     *exec.Cmd
	running bool
	waitErr error
	waitCh  chan struct{}
}

// New creates a Process bound to init but does not start it.
func New(init InitFunc) *Process {
	return &Process{init: init}
}

// Pid returns the child's OS pid, or 0 if the process was never started.
// The pid stays available after a stop so a later Wait can reap it.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Running reports whether the process is between a successful Start and
// the completion of its waiter.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Start invokes init, which is expected to fork and exec, storing the
// child pid; it fails with KindProcessAlreadySpawned if already running.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return agenterr.New(agenterr.KindProcessAlreadySpawned, "process already spawned")
	}
	cmd, err := p.init()
	if err != nil {
		return agenterr.Wrap(agenterr.KindForkFailed, "process init", err)
	}
	p.cmd = cmd
	p.running = true
	p.waitCh = make(chan struct{})
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		close(p.waitCh)
		p.mu.Unlock()
	}()
	return nil
}

// StopOptions controls Stop/StopEx behavior.
type StopOptions struct {
	// Nonblocking leaves Running true and returns immediately after
	// sending the signal; the caller is responsible for a later reap via
	// Wait.
	Nonblocking bool
}

// Stop sends SIGTERM and blocks until the child exits.
func (p *Process) Stop() error {
	return p.StopEx(StopOptions{})
}

// StopEx sends SIGTERM with the given options.
func (p *Process) StopEx(opts StopOptions) error {
	return p.signalAndWait(syscall.SIGTERM, opts)
}

// Kill sends SIGKILL and always waits synchronously.
func (p *Process) Kill() error {
	return p.signalAndWait(syscall.SIGKILL, StopOptions{})
}

func (p *Process) signalAndWait(sig syscall.Signal, opts StopOptions) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return agenterr.New(agenterr.KindProcessNotActive, "process not active")
	}
	cmd := p.cmd
	waitCh := p.waitCh
	p.mu.Unlock()

	if cmd.Process != nil {
		if err := cmd.Process.Signal(sig); err != nil {
			return agenterr.Wrap(agenterr.KindProcessNotActive, "signal child", err)
		}
	}

	if opts.Nonblocking {
		return nil
	}
	<-waitCh
	return p.reap()
}

// Wait reaps a process previously stopped with StopOptions.Nonblocking,
// clearing Running once the waiter completes.
func (p *Process) Wait() error {
	p.mu.Lock()
	waitCh := p.waitCh
	p.mu.Unlock()
	if waitCh == nil {
		return agenterr.New(agenterr.KindProcessNotActive, "process not active")
	}
	<-waitCh
	return p.reap()
}

// reap clears Running and reports the waiter's result. A child that ended
// because of a signal (the SIGTERM/SIGKILL Stop and Kill send) counts as a
// clean stop, not an error.
func (p *Process) reap() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	var ee *exec.ExitError
	if errors.As(p.waitErr, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return nil
		}
	}
	return p.waitErr
}
