package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/internal/alog"
	"github.com/blockwell/agentd/internal/config"
	"github.com/blockwell/agentd/internal/svc"
	"github.com/blockwell/agentd/pkg/dataservice"
	"github.com/blockwell/agentd/pkg/privsep"
	"github.com/blockwell/agentd/pkg/supervisor"
)

// slotFile opens the descriptor inherited at the well-known slot number.
// The private sub-commands never choose their own descriptors; the parent
// that exec'd them has already arranged the table.
func slotFile(slot uintptr, name string) *os.File {
	return os.NewFile(slot, name)
}

func privateDataservice() int {
	reqFile := slotFile(0, "request")
	logFile := slotFile(1, "log")
	return svc.RunData(reqFile, logFile, dataservice.NewMemStore())
}

func privateRandomservice() int {
	reqFile := slotFile(0, "request")
	logFile := slotFile(1, "log")
	return svc.RunRandom(reqFile, logFile)
}

func privateAuthservice() int {
	reqFile := slotFile(0, "request")
	logFile := slotFile(1, "log")
	return svc.RunAuth(reqFile, logFile, nil)
}

func privateCanonizationservice() int {
	reqFile := slotFile(0, "request")
	logFile := slotFile(1, "log")
	return svc.RunCanonization(reqFile, logFile, nil)
}

func privateProtocolservice() int {
	acceptFile := slotFile(0, "accept")
	logFile := slotFile(1, "log")
	dataFile := slotFile(2, "data")
	sharedSecret := make([]byte, 32) // established by the excluded auth service
	return svc.RunProtocol(acceptFile, logFile, dataFile, sharedSecret)
}

func privateListenservice() int {
	logFile := slotFile(0, "log")
	acceptFile := slotFile(1, "accept")

	var listenFiles []*os.File
	for slot := uintptr(2); ; slot++ {
		f := slotFile(slot, "listen")
		if _, err := f.Stat(); err != nil {
			break
		}
		listenFiles = append(listenFiles, f)
	}
	return svc.RunListen(logFile, acceptFile, listenFiles)
}

func doReadconfig() error {
	inFile := slotFile(0, "config-in")
	outFile := slotFile(1, "config-out")
	defer inFile.Close()
	defer outFile.Close()

	settings, err := config.Parse(inFile)
	if err != nil {
		return err
	}
	for k, v := range settings {
		if _, err := fmt.Fprintf(outFile, "%s = %s\n", k, v); err != nil {
			return err
		}
	}
	return nil
}

func doStart(foreground bool) error {
	log := alog.New("agentd", foreground, os.Stderr)
	self, err := os.Executable()
	if err != nil {
		return err
	}

	bconf := config.New().SetForeground(foreground).SetBinary(self)
	bconf.ResolvePrefixDir(config.DefaultPrefixDir)

	// The supervisor's invariant: the PID file is opened and
	// advisory-locked by the root caller before the privileged child is
	// forked, so lock contention here (another agentd already running)
	// is caught before anything is spawned.
	pf, err := supervisor.OpenPidFile(bconf.PidFilePath())
	if err != nil {
		return err
	}

	return supervisor.Run(supervisor.Options{
		Foreground: foreground,
		AgentdPath: self,
		PrefixDir:  bconf.PrefixDir,
		PidFile:    pf,
		Log:        log,
	})
}

// privateBootstrap is the destination of the root parent's fork: it runs
// ChildBootstrap, which chroots, re-locks and takes over the inherited PID
// file, and execs into the "supervisor" private sub-command. It returns
// only on failure; a successful ChildBootstrap replaces this process image.
func privateBootstrap(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, agenterr.New(agenterr.KindInvalidParameter, "bootstrap: missing foreground/prefix arguments"))
		return 1
	}
	foreground, err := strconv.ParseBool(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, agenterr.Wrap(agenterr.KindInvalidParameter, "bootstrap: parse foreground flag", err))
		return 1
	}
	prefixDir := args[1]

	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := supervisor.ChildBootstrap(foreground, prefixDir, self); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if agenterr.Is(err, agenterr.KindPidFileLocked) {
			return 2
		}
		return 1
	}
	return 0
}

// privateChildinit runs inside a service child the supervisor just forked:
// it drops to the demoted service identity, closes any descriptor beyond
// the nfds slots the supervisor wired up, and execs the real sub-command.
// Chroot is not repeated here; the child inherited it from the supervisor
// across both fork and exec.
func privateChildinit(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, agenterr.New(agenterr.KindInvalidParameter, "childinit: missing sub/nfds arguments"))
		return 1
	}
	sub := args[0]
	nfds, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, agenterr.Wrap(agenterr.KindInvalidParameter, "childinit: parse nfds", err))
		return 1
	}

	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := privsep.ServiceBootstrap(config.DefaultServiceUser, config.DefaultServiceGroup, nfds, self, sub); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
