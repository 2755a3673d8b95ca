// Package supervisor implements the root-owned supervisor: PID-file
// locking, forking the privileged child, descriptor setup, and signal
// forwarding.
//
// PID-file advisory locking uses github.com/gofrs/flock (a direct
// dependency in gravwell's go.mod for exactly this concern) rather than a
// hand-rolled flock(2) wrapper. Daemonization (new session, re-exec) is
// grounded on dittofs's cmd/dfs/commands/daemon_unix.go.
package supervisor

import (
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/internal/alog"
	"github.com/blockwell/agentd/pkg/privsep"
)

// PidFileSlot is the well-known descriptor slot the supervisor sub-command
// expects the locked PID file at on entry.
const PidFileSlot = 2

// inheritedPidFileSlot is where the bootstrap hop (see ChildBootstrap)
// finds the PID file fd the root caller opened and locked before forking:
// exec.Cmd maps Stdin/Stdout/Stderr onto 0/1/2 and ExtraFiles from there,
// so the first (and only) extra file lands at 3.
const inheritedPidFileSlot = 3

// PidFile wraps an advisory-locked PID file descriptor. The same open
// file description that TryLock acquired is what gets passed across
// fork/exec, so the lock survives the handoff to the privileged child.
type PidFile struct {
	path string
	lock *flock.Flock
	file *os.File
}

// OpenPidFile opens (creating if needed) and exclusively locks path.
func OpenPidFile(path string) (*PidFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, agenterr.Wrap(agenterr.KindGeneral, "create pid file directory", err)
	}

	l := flock.New(path)
	locked, err := l.TryLock()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindGeneral, "pid file lock", err)
	}
	if !locked {
		return nil, agenterr.New(agenterr.KindPidFileLocked, "pid file already locked")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		l.Unlock()
		return nil, agenterr.Wrap(agenterr.KindGeneral, "open pid file", err)
	}
	return &PidFile{path: path, lock: l, file: f}, nil
}

// File returns the locked *os.File, for passing to a forked child via
// exec.Cmd.ExtraFiles.
func (p *PidFile) File() *os.File { return p.file }

// Write stores pid as decimal ASCII in the PID file, overwriting any
// previous contents.
func (p *PidFile) Write(pid int) error {
	if _, err := p.file.Seek(0, io.SeekStart); err != nil {
		return agenterr.Wrap(agenterr.KindGeneral, "seek pid file", err)
	}
	if err := p.file.Truncate(0); err != nil {
		return agenterr.Wrap(agenterr.KindGeneral, "truncate pid file", err)
	}
	_, err := p.file.WriteString(strconv.Itoa(pid))
	return err
}

// Unlock releases the advisory lock and closes the file.
func (p *PidFile) Unlock() error {
	p.file.Close()
	return p.lock.Unlock()
}

// Options configures Run.
type Options struct {
	Foreground bool
	AgentdPath string
	PrefixDir  string
	PidFile    *PidFile
	Log        *alog.Logger
}

// Run performs the fork/exec/chroot/signal-forwarding sequence. The
// caller must be uid 0 and must already hold opts.PidFile locked; Run
// forks a child that runs ChildBootstrap (chroot, re-lock, write pid,
// remap, exec-private "supervisor") before handing off signal forwarding.
func Run(opts Options) error {
	if err := privsep.EnsureRunningAsRoot(); err != nil {
		return err
	}

	child := exec.Command(opts.AgentdPath, "-P", "bootstrap", strconv.FormatBool(opts.Foreground), opts.PrefixDir)
	child.Stdin, child.Stdout, child.Stderr = os.Stdin, os.Stdout, os.Stderr
	child.ExtraFiles = []*os.File{opts.PidFile.File()}
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: !opts.Foreground}

	if err := child.Start(); err != nil {
		return agenterr.Wrap(agenterr.KindForkFailed, "start privileged child", err)
	}

	// Whether foreground or daemonized, the parent's job from here is to
	// relay signals to the privileged child and reap it on exit.
	return forwardSignalsAndWait(child, opts.Log)
}

func forwardSignalsAndWait(child *exec.Cmd, log *alog.Logger) error {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGKILL, syscall.SIGTERM, syscall.SIGCHLD)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() { done <- child.Wait() }()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGCHLD:
				// Reap any grandchildren the supervisor itself forked
				// outside of exec.Cmd's tracking.
				for {
					var ws syscall.WaitStatus
					pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
					if pid <= 0 || err != nil {
						break
					}
				}
			default:
				if log != nil {
					log.Info("forwarding signal", alog.NewField("signal", sig.String()))
				}
				if child.Process != nil {
					_ = child.Process.Signal(sig.(syscall.Signal))
				}
			}
		case err := <-done:
			return err
		}
	}
}

// ChildBootstrap performs the child-side sequence described by the
// descriptor slot table: optionally create a new session, chroot into
// prefixDir, re-acquire the exclusive lock on the PID file (inherited at
// inheritedPidFileSlot, not reopened by path, since the path would no
// longer resolve the same way post-chroot), write the child's own pid,
// remap the PID fd onto PidFileSlot, and exec the private "supervisor"
// sub-command. A failed re-lock reports KindPidFileLocked so the caller
// can surface PID-lock contention as its own exit code.
func ChildBootstrap(foreground bool, prefixDir string, agentdPath string) error {
	if !foreground {
		if _, err := unix.Setsid(); err != nil {
			return agenterr.Wrap(agenterr.KindForkFailed, "setsid", err)
		}
	}

	if err := privsep.Chroot(prefixDir); err != nil {
		return err
	}

	pidFile := os.NewFile(inheritedPidFileSlot, "pidfile")
	if err := unix.Flock(inheritedPidFileSlot, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return agenterr.Wrap(agenterr.KindPidFileLocked, "re-lock pid file after chroot", err)
	}

	if _, err := pidFile.Seek(0, io.SeekStart); err != nil {
		return agenterr.Wrap(agenterr.KindGeneral, "seek pid file", err)
	}
	if err := pidFile.Truncate(0); err != nil {
		return agenterr.Wrap(agenterr.KindGeneral, "truncate pid file", err)
	}
	if _, err := pidFile.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		return agenterr.Wrap(agenterr.KindGeneral, "write pid file", err)
	}

	if err := privsep.SetFds(privsep.FdPair{Curr: inheritedPidFileSlot, Mapped: PidFileSlot}); err != nil {
		return err
	}

	return privsep.ExecPrivate(agentdPath, "supervisor")
}
