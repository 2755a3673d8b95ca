// Package dataservice implements the capability-scoped block/transaction
// store access layer: the root/child context arena, the request/response
// wire codec, and the dispatcher that authorizes every child-scoped call
// before it touches the Store.
package dataservice

import (
	"encoding/binary"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/pkg/capset"
)

// Dispatcher routes decoded requests to Root/Store operations, checking
// capabilities first.
type Dispatcher struct {
	root *Root
}

func NewDispatcher(root *Root) *Dispatcher {
	return &Dispatcher{root: root}
}

// Handle decodes req, authorizes it, runs the method body, and returns the
// encoded response body. Handle has no error result: authorization and
// not-found failures become a non-zero Status in the Response, and a
// request too short to decode gets a response with method 0, offset 0 and
// a short-read Status.
func (d *Dispatcher) Handle(svc agenterr.ServiceID, raw []byte) []byte {
	req, err := DecodeRequest(raw)
	if err != nil {
		return EncodeResponse(Response{Status: agenterr.StatusForKind(svc, agenterr.KindShortRead)})
	}

	status, body := d.dispatch(svc, req)
	return EncodeResponse(Response{Method: req.Method, Offset: req.Offset, Status: status, Body: body})
}

func (d *Dispatcher) dispatch(svc agenterr.ServiceID, req Request) (status uint32, body []byte) {
	if bit, ok := capabilityFor[req.Method]; ok {
		if err := d.root.Authorize(req.Offset, bit); err != nil {
			return statusFor(svc, err), nil
		}
	}

	switch req.Method {
	case MethodRootContextInit:
		// Idempotent from the dispatcher's point of view: the Root
		// already exists by the time requests are being served, so
		// this call only ever reports success.
		return agenterr.StatusOK, nil

	case MethodRootReduceCaps:
		mask, ok := capset.FromBytes(req.Body)
		if !ok {
			return agenterr.StatusForKind(svc, agenterr.KindInvalidSize), nil
		}
		if err := d.root.ReduceCaps(mask); err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, nil

	case MethodChildCreate:
		mask, ok := capset.FromBytes(req.Body)
		if !ok {
			return agenterr.StatusForKind(svc, agenterr.KindInvalidSize), nil
		}
		offset, err := d.root.ChildContextCreate(mask)
		if err != nil {
			return statusFor(svc, err), nil
		}
		var out [4]byte
		binary.BigEndian.PutUint32(out[:], offset)
		return agenterr.StatusOK, out[:]

	case MethodChildClose:
		if err := d.root.ChildContextClose(req.Offset); err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, nil

	case MethodBlockReadByID:
		id, ok := IDFromBytes(req.Body)
		if !ok {
			return agenterr.StatusForKind(svc, agenterr.KindInvalidSize), nil
		}
		b, err := d.root.Store().BlockByID(id)
		if err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, encodeBlockBody(b)

	case MethodBlockIDByHeight:
		if len(req.Body) != 8 {
			return agenterr.StatusForKind(svc, agenterr.KindInvalidSize), nil
		}
		height := binary.BigEndian.Uint64(req.Body)
		id, err := d.root.Store().BlockIDByHeight(height)
		if err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, id.Bytes()

	case MethodLatestBlockID:
		id, err := d.root.Store().LatestBlockID()
		if err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, id.Bytes()

	case MethodTransactionByID:
		id, ok := IDFromBytes(req.Body)
		if !ok {
			return agenterr.StatusForKind(svc, agenterr.KindInvalidSize), nil
		}
		txn, err := d.root.Store().TransactionByID(id)
		if err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, encodeTransactionBody(txn)

	case MethodTransactionQueueFirst:
		txn, err := d.root.Store().TransactionQueueFirst()
		if err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, encodeTransactionBody(txn)

	case MethodTransactionSubmit:
		if len(req.Body) < 32 {
			return agenterr.StatusForKind(svc, agenterr.KindInvalidSize), nil
		}
		txnID, _ := IDFromBytes(req.Body[0:16])
		artifactID, _ := IDFromBytes(req.Body[16:32])
		cert := append([]byte(nil), req.Body[32:]...)
		if err := d.root.Store().TransactionSubmit(txnID, artifactID, cert); err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, nil

	case MethodTransactionPromote:
		txnID, ok := IDFromBytes(req.Body)
		if !ok {
			return agenterr.StatusForKind(svc, agenterr.KindInvalidSize), nil
		}
		if err := d.root.Store().TransactionPromote(txnID); err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, nil

	case MethodGlobalSettingRead:
		if len(req.Body) != 8 {
			return agenterr.StatusForKind(svc, agenterr.KindInvalidSize), nil
		}
		key := binary.BigEndian.Uint64(req.Body)
		v, err := d.root.Store().GlobalSettingRead(key)
		if err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, v

	case MethodGlobalSettingWrite:
		if len(req.Body) < 8 {
			return agenterr.StatusForKind(svc, agenterr.KindInvalidSize), nil
		}
		key := binary.BigEndian.Uint64(req.Body[0:8])
		value := append([]byte(nil), req.Body[8:]...)
		if err := d.root.Store().GlobalSettingWrite(key, value); err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, nil

	case MethodArtifactRead:
		id, ok := IDFromBytes(req.Body)
		if !ok {
			return agenterr.StatusForKind(svc, agenterr.KindInvalidSize), nil
		}
		a, err := d.root.Store().ArtifactByID(id)
		if err != nil {
			return statusFor(svc, err), nil
		}
		return agenterr.StatusOK, encodeArtifactBody(a)

	default:
		return agenterr.StatusForKind(svc, agenterr.KindInvalidParameter), nil
	}
}

func statusFor(svc agenterr.ServiceID, err error) uint32 {
	if agenterr.Is(err, agenterr.KindNotAuthorized) {
		return agenterr.StatusForKind(svc, agenterr.KindNotAuthorized)
	}
	if agenterr.Is(err, agenterr.KindNotFound) {
		return agenterr.StatusForKind(svc, agenterr.KindNotFound)
	}
	if agenterr.Is(err, agenterr.KindCapabilityMismatch) {
		return agenterr.StatusForKind(svc, agenterr.KindCapabilityMismatch)
	}
	if agenterr.Is(err, agenterr.KindChildNotFound) {
		return agenterr.StatusForKind(svc, agenterr.KindChildNotFound)
	}
	return agenterr.StatusForKind(svc, agenterr.KindGeneral)
}
