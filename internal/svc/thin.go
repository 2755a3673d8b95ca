package svc

import (
	"errors"
	"io"
	"os"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/internal/alog"
	"github.com/blockwell/agentd/pkg/ipc"
	"github.com/blockwell/agentd/pkg/wire"
)

// Handler computes a response body for one request body. It is run inline
// on the event-loop goroutine and MUST NOT block.
type Handler func(request []byte) []byte

// runRequestResponseShell is the common body behind every service whose
// job is "read one DATA_PACKET request, call handle, write one DATA_PACKET
// response". authservice and canonizationservice both key off this; their
// actual cryptographic/consensus logic is an out-of-scope external
// collaborator, so handle here is necessarily a stand-in the real
// primitive library/consensus engine would replace.
func runRequestResponseShell(name string, id agenterr.ServiceID, requestFile, logFile *os.File, handle Handler) int {
	log := alog.New(name, false, logFile)
	sh, err := New(name, id, log)
	if err != nil {
		log.Error("init failed", alog.KVErr(err))
		return ExitCode(err)
	}

	onRead := func(ctx *ipc.SocketContext) {
		p, err := ctx.Reader.ReadPacket()
		if err != nil {
			if errors.Is(err, wire.ErrWouldBlock) {
				return
			}
			if errors.Is(err, io.EOF) {
				ctx.Close()
				return
			}
			log.Warn("request read failed", alog.KVErr(err))
			ctx.Close()
			return
		}
		payload, err := wire.DecodeData(p)
		if err != nil {
			log.Warn("request decode failed", alog.KVErr(err))
			return
		}
		resp := handle(payload)
		if err := ctx.QueueWrite(wire.TypeData, resp); err != nil {
			log.Warn("response encode failed", alog.KVErr(err))
			return
		}
		if err := ctx.FlushWrites(); err != nil && !errors.Is(err, wire.ErrWouldBlock) {
			log.Warn("response write failed", alog.KVErr(err))
		}
	}
	onWrite := func(ctx *ipc.SocketContext) {
		if err := ctx.FlushWrites(); err != nil && !errors.Is(err, wire.ErrWouldBlock) {
			log.Warn("deferred response write failed", alog.KVErr(err))
		}
	}

	if _, err := sh.AddSocket(requestFile, onRead, onWrite); err != nil {
		log.Error("add request socket failed", alog.KVErr(err))
		return ExitCode(err)
	}
	if err := sh.Run(); err != nil {
		log.Error("run failed", alog.KVErr(err))
		return ExitCode(err)
	}
	return 0
}

// RunAuth implements the "authservice" private sub-command. Key exchange
// and credential verification are the excluded external collaborator;
// this shell's handler is a placeholder the real negotiation logic
// replaces, wired the same way every other request/response service is.
func RunAuth(requestFile, logFile *os.File, handle Handler) int {
	if handle == nil {
		handle = func(req []byte) []byte { return nil }
	}
	return runRequestResponseShell("authservice", agenterr.ServiceAuth, requestFile, logFile, handle)
}

// RunCanonization implements the "canonizationservice" private
// sub-command. The consensus algorithm itself is out of scope; this
// shell only provides the event-loop plumbing a real canonization engine
// would be wired into.
func RunCanonization(requestFile, logFile *os.File, handle Handler) int {
	if handle == nil {
		handle = func(req []byte) []byte { return nil }
	}
	return runRequestResponseShell("canonizationservice", agenterr.ServiceConsensus, requestFile, logFile, handle)
}
