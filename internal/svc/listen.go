package svc

import (
	"net"
	"os"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/internal/alog"
	"github.com/blockwell/agentd/pkg/ipc"
)

// RunListen implements the "listenservice" private sub-command. For each
// already-bound listen socket it runs a blocking accept loop on its own
// goroutine (accept itself is not part of the non-blocking framing
// contract) and hands every accepted connection's descriptor across the
// accept socket via send_descriptor, the out-of-band descriptor transfer
// mechanism this core relies on rather than owning any network-facing
// protocol beyond the framing layer.
func RunListen(logFile, acceptFile *os.File, listenFiles []*os.File) int {
	log := alog.New("listenservice", false, logFile)

	acceptConn, err := net.FileConn(acceptFile)
	if err != nil {
		log.Error("accept socket not a unix conn", alog.KVErr(err))
		return 1
	}
	unixAccept, ok := acceptConn.(*net.UnixConn)
	if !ok {
		log.Error("accept socket is not AF_UNIX")
		return 1
	}

	errCh := make(chan error, len(listenFiles))
	for _, lf := range listenFiles {
		ln, err := net.FileListener(lf)
		if err != nil {
			log.Error("listen socket invalid", alog.KVErr(err))
			return 1
		}
		go acceptLoop(ln, unixAccept, log, errCh)
	}

	err = <-errCh
	log.Info("listen loop exiting", alog.KVErr(err))
	return ExitCode(err)
}

func acceptLoop(ln net.Listener, out *net.UnixConn, log *alog.Logger, errCh chan<- error) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- agenterr.Wrap(agenterr.KindSocketpairFailed, "accept failed", err)
			return
		}
		fc, ok := conn.(interface {
			File() (*os.File, error)
		})
		if !ok {
			log.Warn("accepted connection has no descriptor")
			conn.Close()
			continue
		}
		f, err := fc.File()
		if err != nil {
			log.Warn("dup accepted descriptor failed", alog.KVErr(err))
			conn.Close()
			continue
		}
		if err := ipc.SendDescriptor(out, int(f.Fd())); err != nil {
			log.Warn("send_descriptor failed", alog.KVErr(err))
		}
		f.Close()
		conn.Close()
	}
}
