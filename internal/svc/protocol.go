package svc

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/internal/alog"
	"github.com/blockwell/agentd/pkg/authframe"
	"github.com/blockwell/agentd/pkg/ipc"
	"github.com/blockwell/agentd/pkg/wire"
)

// RunProtocol implements the "protocolservice" private sub-command. This
// core owns no network-facing protocol beyond what the framing layer
// guarantees, so this shell does not interpret client payloads: it
// terminates the authenticated transport on the client side, forwards
// the decrypted request bytes verbatim as a dataservice request on the
// data socket, and authenticates the response back to the client.
//
// sharedSecret is the per-connection AEAD key established by the
// excluded auth service.
func RunProtocol(acceptFile, logFile, dataFile *os.File, sharedSecret []byte) int {
	log := alog.New("protocolservice", false, logFile)

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

	var dataMu sync.Mutex
	dataW := wire.NewWriter(dataFile, wire.Nonblock, 0)
	dataR := wire.NewReader(dataFile, wire.Nonblock, 0)

	for {
		fd, err := ipc.RecvDescriptor(unixAccept)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("accept socket closed")
				return 0
			}
			log.Error("recv_descriptor failed", alog.KVErr(err))
			return 1
		}
		client := os.NewFile(uintptr(fd), "client")
		go serveClient(client, sharedSecret, dataW, dataR, &dataMu, log)
	}
}

func serveClient(client *os.File, sharedSecret []byte, dataW *wire.Writer, dataR *wire.Reader, dataMu *sync.Mutex, log *alog.Logger) {
	defer client.Close()

	ep, err := authframe.NewEndpoint(sharedSecret)
	if err != nil {
		log.Warn("endpoint init failed", alog.KVErr(err))
		return
	}

	r := wire.NewReader(client, wire.Nonblock, 0)
	w := wire.NewWriter(client, wire.Nonblock, 0)

	for {
		plaintext, err := authframe.ReadAuthed(r, ep)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("client read_authed failed", alog.KVErr(err))
			}
			return
		}

		dataMu.Lock()
		respBody, err := forwardToData(dataW, dataR, plaintext)
		dataMu.Unlock()
		if err != nil {
			log.Warn("data round trip failed", alog.KVErr(err))
			return
		}

		if err := authframe.WriteAuthed(w, ep, respBody); err != nil {
			log.Warn("client write_authed failed", alog.KVErr(err))
			return
		}
	}
}

func forwardToData(w *wire.Writer, r *wire.Reader, reqBody []byte) ([]byte, error) {
	if err := w.WriteData(reqBody); err != nil {
		return nil, agenterr.Wrap(agenterr.KindWriteFailed, "forward request to data socket", err)
	}
	p, err := r.ReadPacket()
	if err != nil {
		return nil, agenterr.Wrap(agenterr.KindReadFailed, "read data socket response", err)
	}
	return wire.DecodeData(p)
}
