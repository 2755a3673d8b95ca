package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/blockwell/agentd/internal/alog"
	"github.com/blockwell/agentd/pkg/ipc"
	"github.com/blockwell/agentd/pkg/procmgr"
	"github.com/blockwell/agentd/pkg/supervisor"
)

// childSpec describes one private sub-command the supervisor forks, and
// which end of which socketpairs lands in its inherited descriptor table.
// Files are given in slot order; exec.Cmd maps slot 0/1/2 onto
// Stdin/Stdout/Stderr and slot 3+ onto ExtraFiles, so the child's fd
// numbers match the table regardless of what those fds would
// conventionally mean to a standalone process.
//
// The supervisor itself never execs sub directly: every child is forked
// into "-P childinit sub nfds" first, which drops to the demoted service
// identity and closes anything past the wired slots before exec'ing into
// sub, so none of the six services ever runs at the supervisor's
// privilege level.
type childSpec struct {
	sub   string
	slots []*os.File
}

func (s childSpec) start(agentdPath string) (*procmgr.Process, error) {
	p := procmgr.New(func() (*exec.Cmd, error) {
		cmd := exec.Command(agentdPath, "-P", "childinit", s.sub, strconv.Itoa(len(s.slots)))
		if len(s.slots) > 0 {
			cmd.Stdin = s.slots[0]
		}
		if len(s.slots) > 1 {
			cmd.Stdout = s.slots[1]
		}
		if len(s.slots) > 2 {
			cmd.Stderr = s.slots[2]
		}
		if len(s.slots) > 3 {
			cmd.ExtraFiles = s.slots[3:]
		}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return cmd, nil
	})
	return p, p.Start()
}

// privateSupervisor is the destination of the privileged child's own
// re-exec: it forks each specialized service named in the component
// overview, wires their sockets per the descriptor slot table, and
// forwards shutdown signals to the whole family, holding the PID file
// open for its own lifetime.
func privateSupervisor() int {
	pidFileFd := slotFile(uintptr(supervisor.PidFileSlot), "pidfile")
	defer pidFileFd.Close()

	log := alog.New("supervisor", false, os.Stderr)

	agentdPath, err := os.Executable()
	if err != nil {
		log.Error("resolve agentd path failed", alog.KVErr(err))
		return 1
	}

	dataReq, dataReqPeer, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("data request socketpair failed", alog.KVErr(err))
		return 1
	}
	dataLog, dataLogPeer, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("data log socketpair failed", alog.KVErr(err))
		return 1
	}
	acceptSock, acceptSockPeer, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("accept socketpair failed", alog.KVErr(err))
		return 1
	}
	protoLog, protoLogPeer, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("protocol log socketpair failed", alog.KVErr(err))
		return 1
	}
	listenLog, listenLogPeer, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("listen log socketpair failed", alog.KVErr(err))
		return 1
	}
	randReq, randReqPeer, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("random request socketpair failed", alog.KVErr(err))
		return 1
	}
	randLog, randLogPeer, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("random log socketpair failed", alog.KVErr(err))
		return 1
	}
	authReq, _, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("auth request socketpair failed", alog.KVErr(err))
		return 1
	}
	authLog, authLogPeer, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("auth log socketpair failed", alog.KVErr(err))
		return 1
	}
	canonReq, _, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("canonization request socketpair failed", alog.KVErr(err))
		return 1
	}
	canonLog, canonLogPeer, err := ipc.NewSocketpair()
	if err != nil {
		log.Error("canonization log socketpair failed", alog.KVErr(err))
		return 1
	}

	// protocolservice's third slot carries the data socket; the random
	// request socket rides the ExtraFiles tail at slot 3. No control
	// (canonization) socket is passed to it.
	specs := []childSpec{
		{sub: "dataservice", slots: []*os.File{dataReq, dataLog}},
		{sub: "randomservice", slots: []*os.File{randReq, randLog}},
		{sub: "authservice", slots: []*os.File{authReq, authLog}},
		{sub: "canonizationservice", slots: []*os.File{canonReq, canonLog}},
		{sub: "protocolservice", slots: []*os.File{acceptSockPeer, protoLog, dataReqPeer, randReqPeer}},
		{sub: "listenservice", slots: []*os.File{listenLog, acceptSock}},
	}

	procs := make([]*procmgr.Process, 0, len(specs))
	for _, spec := range specs {
		p, err := spec.start(agentdPath)
		if err != nil {
			log.Error("spawn child failed", alog.NewField("sub", spec.sub), alog.KVErr(err))
			stopAll(procs)
			return 1
		}
		log.Info("spawned child", alog.NewField("sub", spec.sub), alog.NewField("pid", p.Pid()))
		procs = append(procs, p)
	}

	logPeers := []*os.File{dataLogPeer, protoLogPeer, listenLogPeer, randLogPeer, authLogPeer, canonLogPeer}
	for _, peer := range logPeers {
		go relayLog(log, peer)
	}

	waitForShutdown(log)
	stopAll(procs)
	return 0
}

// relayLog copies a child's JSON log lines verbatim onto os.Stderr, the
// same stream the supervisor's own logger writes to, so every service's
// output surfaces in one place. The lines do not pass through log.
func relayLog(log *alog.Logger, peer *os.File) {
	buf := make([]byte, 4096)
	for {
		n, err := peer.Read(buf)
		if n > 0 {
			fmt.Fprintf(os.Stderr, "%s", buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func waitForShutdown(log *alog.Logger) {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	defer signal.Stop(sigCh)
	sig := <-sigCh
	log.Info("received shutdown signal", alog.NewField("signal", sig.String()))
}

func stopAll(procs []*procmgr.Process) {
	for _, p := range procs {
		if p.Running() {
			_ = p.StopEx(procmgr.StopOptions{Nonblocking: true})
		}
	}
	for _, p := range procs {
		if p.Pid() != 0 {
			_ = p.Wait()
		}
	}
}
