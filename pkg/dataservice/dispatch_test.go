package dataservice_test

import (
	"testing"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/pkg/capset"
	"github.com/blockwell/agentd/pkg/dataservice"
	"github.com/stretchr/testify/require"
)

func TestRequestResponseEnvelopeRoundTrip(t *testing.T) {
	req := dataservice.Request{
		Method: dataservice.MethodLatestBlockID,
		Offset: 7,
		Body:   nil,
	}
	buf := dataservice.EncodeRequest(req)
	got, err := dataservice.DecodeRequest(buf)
	require.NoError(t, err)
	require.Equal(t, req, got)

	resp := dataservice.Response{
		Method: dataservice.MethodLatestBlockID,
		Offset: 7,
		Status: agenterr.StatusOK,
		Body:   []byte("block-id-bytes"),
	}
	rbuf := dataservice.EncodeResponse(resp)
	gotResp, err := dataservice.DecodeResponse(rbuf)
	require.NoError(t, err)
	require.Equal(t, resp, gotResp)
}

func newDispatcher(t *testing.T) (*dataservice.Dispatcher, *dataservice.Root) {
	t.Helper()
	root := dataservice.RootContextInit(dataservice.NewMemStore())
	return dataservice.NewDispatcher(root), root
}

// TestDispatchUnauthorizedTransactionSubmitReturnsStatusWithoutMutation
// exercises the unauthorized-submit case end to end through the wire
// codec: a child lacking TRANSACTION_SUBMIT gets a non-zero status and
// the queue stays empty.
func TestDispatchUnauthorizedTransactionSubmitReturnsStatusWithoutMutation(t *testing.T) {
	d, root := newDispatcher(t)

	mask := capset.AllTrue().WithClear(capset.TransactionSubmit)
	offset, err := root.ChildContextCreate(mask)
	require.NoError(t, err)

	txnID := dataservice.NewID()
	artifactID := dataservice.NewID()
	body := append(append([]byte{}, txnID.Bytes()...), artifactID.Bytes()...)
	body = append(body, []byte("cert")...)

	raw := dataservice.EncodeRequest(dataservice.Request{
		Method: dataservice.MethodTransactionSubmit,
		Offset: offset,
		Body:   body,
	})

	respBuf := d.Handle(agenterr.ServiceData, raw)
	resp, err := dataservice.DecodeResponse(respBuf)
	require.NoError(t, err)
	require.NotEqual(t, agenterr.StatusOK, resp.Status)

	_, err = root.Store().TransactionByID(txnID)
	require.Error(t, err)
}

func TestDispatchAuthorizedTransactionSubmitSucceeds(t *testing.T) {
	d, root := newDispatcher(t)

	offset, err := root.ChildContextCreate(capset.AllTrue())
	require.NoError(t, err)

	txnID := dataservice.NewID()
	artifactID := dataservice.NewID()
	body := append(append([]byte{}, txnID.Bytes()...), artifactID.Bytes()...)
	body = append(body, []byte("cert")...)

	raw := dataservice.EncodeRequest(dataservice.Request{
		Method: dataservice.MethodTransactionSubmit,
		Offset: offset,
		Body:   body,
	})

	respBuf := d.Handle(agenterr.ServiceData, raw)
	resp, err := dataservice.DecodeResponse(respBuf)
	require.NoError(t, err)
	require.Equal(t, agenterr.StatusOK, resp.Status)

	stored, err := root.Store().TransactionByID(txnID)
	require.NoError(t, err)
	require.Equal(t, artifactID, stored.ArtifactID)
}

func TestDispatchChildCreateAndClose(t *testing.T) {
	d, root := newDispatcher(t)

	raw := dataservice.EncodeRequest(dataservice.Request{
		Method: dataservice.MethodChildCreate,
		Body:   capset.AllTrue().Bytes(),
	})
	respBuf := d.Handle(agenterr.ServiceData, raw)
	resp, err := dataservice.DecodeResponse(respBuf)
	require.NoError(t, err)
	require.Equal(t, agenterr.StatusOK, resp.Status)
	require.Len(t, resp.Body, 4)

	offset := uint32(resp.Body[0])<<24 | uint32(resp.Body[1])<<16 | uint32(resp.Body[2])<<8 | uint32(resp.Body[3])
	closeRaw := dataservice.EncodeRequest(dataservice.Request{
		Method: dataservice.MethodChildClose,
		Offset: offset,
	})
	closeResp, err := dataservice.DecodeResponse(d.Handle(agenterr.ServiceData, closeRaw))
	require.NoError(t, err)
	require.Equal(t, agenterr.StatusOK, closeResp.Status)

	_, err = root.ChildCaps(offset)
	require.Error(t, err)
}

func TestDispatchRejectsMalformedRequest(t *testing.T) {
	d, _ := newDispatcher(t)
	respBuf := d.Handle(agenterr.ServiceData, []byte{1, 2})
	resp, err := dataservice.DecodeResponse(respBuf)
	require.NoError(t, err)
	require.NotEqual(t, agenterr.StatusOK, resp.Status)
}

// TestDispatchBlockReadByIDDecodesToOriginalRecord plays the client side
// of MethodBlockReadByID: encode the request, hand it to the dispatcher the
// way protocolservice's data socket would, then decode the response body
// back into a Block and check every field survived the round trip.
func TestDispatchBlockReadByIDDecodesToOriginalRecord(t *testing.T) {
	store := dataservice.NewMemStore()
	root := dataservice.RootContextInit(store)
	d := dataservice.NewDispatcher(root)

	offset, err := root.ChildContextCreate(capset.AllTrue())
	require.NoError(t, err)

	want := dataservice.Block{
		ID:         dataservice.NewID(),
		Prev:       dataservice.BeginningID(),
		Next:       dataservice.EndID(),
		FirstTxnID: dataservice.NewID(),
		Height:     42,
		Cert:       []byte("block-cert"),
	}
	store.PutBlock(want)

	raw := dataservice.EncodeRequest(dataservice.Request{
		Method: dataservice.MethodBlockReadByID,
		Offset: offset,
		Body:   want.ID.Bytes(),
	})
	respBuf := d.Handle(agenterr.ServiceData, raw)
	resp, err := dataservice.DecodeResponse(respBuf)
	require.NoError(t, err)
	require.Equal(t, agenterr.StatusOK, resp.Status)

	got, err := dataservice.DecodeBlockBody(resp.Body)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// TestDispatchTransactionQueueFirstDecodesToOriginalRecord exercises the
// transaction-queue read path end to end, including DecodeTransactionBody
// on the client side.
func TestDispatchTransactionQueueFirstDecodesToOriginalRecord(t *testing.T) {
	d, root := newDispatcher(t)

	offset, err := root.ChildContextCreate(capset.AllTrue())
	require.NoError(t, err)

	txnID := dataservice.NewID()
	artifactID := dataservice.NewID()
	body := append(append([]byte{}, txnID.Bytes()...), artifactID.Bytes()...)
	body = append(body, []byte("queued-cert")...)

	submit := dataservice.EncodeRequest(dataservice.Request{
		Method: dataservice.MethodTransactionSubmit,
		Offset: offset,
		Body:   body,
	})
	submitResp, err := dataservice.DecodeResponse(d.Handle(agenterr.ServiceData, submit))
	require.NoError(t, err)
	require.Equal(t, agenterr.StatusOK, submitResp.Status)

	queueFirst := dataservice.EncodeRequest(dataservice.Request{
		Method: dataservice.MethodTransactionQueueFirst,
		Offset: offset,
	})
	resp, err := dataservice.DecodeResponse(d.Handle(agenterr.ServiceData, queueFirst))
	require.NoError(t, err)
	require.Equal(t, agenterr.StatusOK, resp.Status)

	got, err := dataservice.DecodeTransactionBody(resp.Body)
	require.NoError(t, err)
	require.Equal(t, txnID, got.ID)
	require.Equal(t, artifactID, got.ArtifactID)
	require.Equal(t, []byte("queued-cert"), got.Cert)

	byID := dataservice.EncodeRequest(dataservice.Request{
		Method: dataservice.MethodTransactionByID,
		Offset: offset,
		Body:   txnID.Bytes(),
	})
	byIDResp, err := dataservice.DecodeResponse(d.Handle(agenterr.ServiceData, byID))
	require.NoError(t, err)
	require.Equal(t, agenterr.StatusOK, byIDResp.Status)

	gotByID, err := dataservice.DecodeTransactionBody(byIDResp.Body)
	require.NoError(t, err)
	require.Equal(t, got, gotByID)
}
