package svc_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/blockwell/agentd/internal/svc"
	"github.com/blockwell/agentd/pkg/capset"
	"github.com/blockwell/agentd/pkg/dataservice"
	"github.com/blockwell/agentd/pkg/ipc"
	"github.com/blockwell/agentd/pkg/wire"
	"github.com/stretchr/testify/require"
)

func TestRunDataServesLatestBlockIDOverSocketpair(t *testing.T) {
	reqA, reqB, err := ipc.NewSocketpair()
	require.NoError(t, err)
	logA, logB, err := ipc.NewSocketpair()
	require.NoError(t, err)
	defer logA.Close()

	store := dataservice.NewMemStore()
	store.PutBlock(dataservice.Block{ID: dataservice.NewID(), Height: 1})

	done := make(chan int, 1)
	go func() { done <- svc.RunData(reqB, logB, store) }()

	time.Sleep(20 * time.Millisecond)

	w := wire.NewWriter(reqA, wire.Nonblock, 0)
	r := wire.NewReader(reqA, wire.Nonblock, 0)

	offset, err := createChild(w, r)
	require.NoError(t, err)

	req := dataservice.EncodeRequest(dataservice.Request{Method: dataservice.MethodLatestBlockID, Offset: offset})
	require.Eventually(t, func() bool {
		return w.WriteData(req) == nil
	}, time.Second, time.Millisecond)

	var respBody []byte
	require.Eventually(t, func() bool {
		p, err := r.ReadPacket()
		if err != nil {
			return false
		}
		respBody, err = wire.DecodeData(p)
		return err == nil
	}, time.Second, time.Millisecond)

	resp, err := dataservice.DecodeResponse(respBody)
	require.NoError(t, err)
	require.Equal(t, uint32(0), resp.Status)

	syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(2 * time.Second):
		t.Fatal("RunData did not exit after SIGTERM")
	}
}

func createChild(w *wire.Writer, r *wire.Reader) (uint32, error) {
	req := dataservice.EncodeRequest(dataservice.Request{
		Method: dataservice.MethodChildCreate,
		Body:   capset.AllTrue().Bytes(),
	})
	for {
		if err := w.WriteData(req); err == nil {
			break
		} else if err != wire.ErrWouldBlock {
			return 0, err
		}
		time.Sleep(time.Millisecond)
	}
	for {
		p, err := r.ReadPacket()
		if err == nil {
			body, err := wire.DecodeData(p)
			if err != nil {
				return 0, err
			}
			resp, err := dataservice.DecodeResponse(body)
			if err != nil {
				return 0, err
			}
			return uint32(resp.Body[0])<<24 | uint32(resp.Body[1])<<16 | uint32(resp.Body[2])<<8 | uint32(resp.Body[3]), nil
		}
		if err != wire.ErrWouldBlock {
			return 0, err
		}
		time.Sleep(time.Millisecond)
	}
}
