package svc

import (
	"crypto/rand"
	"errors"
	"io"
	"os"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/internal/alog"
	"github.com/blockwell/agentd/pkg/ipc"
	"github.com/blockwell/agentd/pkg/wire"
)

// RunRandom implements the "randomservice" private sub-command: the
// randomness source in the component list. The cryptographic primitive
// library itself is an out-of-scope external collaborator; this shell
// only wires crypto/rand's CSPRNG behind the same request/response
// framing every other service uses. A request's TypeUint64 payload names
// the number of bytes wanted; the response is a TypeData packet of that
// many random bytes.
func RunRandom(requestFile, logFile *os.File) int {
	log := alog.New("randomservice", false, logFile)
	sh, err := New("randomservice", agenterr.ServiceGeneral, log)
	if err != nil {
		log.Error("init failed", alog.KVErr(err))
		return ExitCode(err)
	}

	onRead := func(ctx *ipc.SocketContext) {
		n, err := ctx.Reader.ReadUint64()
		if err != nil {
			if errors.Is(err, wire.ErrWouldBlock) {
				return
			}
			if errors.Is(err, io.EOF) {
				ctx.Close()
				return
			}
			log.Warn("random request read failed", alog.KVErr(err))
			ctx.Close()
			return
		}
		const maxRandomRequest = 1 << 20
		if n > maxRandomRequest {
			log.Warn("random request too large", alog.NewField("requested", n))
			ctx.Close()
			return
		}
		buf := make([]byte, n)
		if _, err := rand.Read(buf); err != nil {
			log.Error("csprng read failed", alog.KVErr(err))
			ctx.Close()
			return
		}
		if err := ctx.QueueWrite(wire.TypeData, buf); err != nil {
			log.Warn("random response encode failed", alog.KVErr(err))
			return
		}
		if err := ctx.FlushWrites(); err != nil && !errors.Is(err, wire.ErrWouldBlock) {
			log.Warn("random response write failed", alog.KVErr(err))
		}
	}
	onWrite := func(ctx *ipc.SocketContext) {
		if err := ctx.FlushWrites(); err != nil && !errors.Is(err, wire.ErrWouldBlock) {
			log.Warn("deferred random response write failed", alog.KVErr(err))
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
