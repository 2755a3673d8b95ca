package dataservice

import (
	"encoding/binary"

	"github.com/blockwell/agentd/internal/agenterr"
)

// Request is a decoded dataservice request packet: a method_id, the
// child-index prefix for child-scoped methods (0 for root-level calls),
// and the method-specific body.
type Request struct {
	Method MethodID
	Offset uint32
	Body   []byte
}

// Response is a decoded dataservice response packet: method_id, offset,
// status, then a method-specific body only meaningful when
// status == agenterr.StatusOK.
type Response struct {
	Method MethodID
	Offset uint32
	Status uint32
	Body   []byte
}

const (
	requestPrefixLen  = 4 + 4 // method_id + child_index
	responsePrefixLen = 4 + 4 + 4
)

// rootLevelMethod reports whether a method carries no child_index prefix
// on the wire. Root context init, root reduce caps and child create all
// operate against the single Root itself rather than an existing child
// slot, so none of their request bodies carry the child_index prefix.
func rootLevelMethod(m MethodID) bool {
	switch m {
	case MethodRootContextInit, MethodRootReduceCaps, MethodChildCreate:
		return true
	default:
		return false
	}
}

// EncodeRequest serializes req into the wire body.
func EncodeRequest(req Request) []byte {
	if rootLevelMethod(req.Method) {
		buf := make([]byte, 4+len(req.Body))
		binary.BigEndian.PutUint32(buf[0:4], uint32(req.Method))
		copy(buf[4:], req.Body)
		return buf
	}
	buf := make([]byte, requestPrefixLen+len(req.Body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(req.Method))
	binary.BigEndian.PutUint32(buf[4:8], req.Offset)
	copy(buf[8:], req.Body)
	return buf
}

// DecodeRequest parses the method_id prefix (and child_index prefix where
// applicable) out of buf. An empty body decodes as nil, so a request
// encoded with a nil Body round-trips unchanged.
func DecodeRequest(buf []byte) (Request, error) {
	if len(buf) < 4 {
		return Request{}, agenterr.New(agenterr.KindShortRead, "request too short for method id")
	}
	method := MethodID(binary.BigEndian.Uint32(buf[0:4]))
	if rootLevelMethod(method) {
		return Request{Method: method, Body: nonEmpty(buf[4:])}, nil
	}
	if len(buf) < requestPrefixLen {
		return Request{}, agenterr.New(agenterr.KindShortRead, "request too short for child index")
	}
	offset := binary.BigEndian.Uint32(buf[4:8])
	return Request{Method: method, Offset: offset, Body: nonEmpty(buf[8:])}, nil
}

func nonEmpty(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

// EncodeResponse serializes resp into the wire body.
func EncodeResponse(resp Response) []byte {
	buf := make([]byte, responsePrefixLen+len(resp.Body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(resp.Method))
	binary.BigEndian.PutUint32(buf[4:8], resp.Offset)
	binary.BigEndian.PutUint32(buf[8:12], resp.Status)
	copy(buf[12:], resp.Body)
	return buf
}

// DecodeResponse parses buf into a Response.
func DecodeResponse(buf []byte) (Response, error) {
	if len(buf) < responsePrefixLen {
		return Response{}, agenterr.New(agenterr.KindShortRead, "response too short")
	}
	return Response{
		Method: MethodID(binary.BigEndian.Uint32(buf[0:4])),
		Offset: binary.BigEndian.Uint32(buf[4:8]),
		Status: binary.BigEndian.Uint32(buf[8:12]),
		Body:   buf[12:],
	}, nil
}

// --- method body encodings ---

func encodeBlockBody(b Block) []byte {
	out := make([]byte, 0, 16*3+8+len(b.Cert))
	out = append(out, b.ID.Bytes()...)
	out = append(out, b.Prev.Bytes()...)
	out = append(out, b.Next.Bytes()...)
	out = append(out, b.FirstTxnID.Bytes()...)
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], b.Height)
	out = append(out, h[:]...)
	out = append(out, b.Cert...)
	return out
}

// DecodeBlockBody parses a MethodBlockReadByID response body back into a
// Block, the inverse of encodeBlockBody. A dataservice client that needs
// the structured record rather than the opaque wire bytes decodes a
// response with this.
func DecodeBlockBody(buf []byte) (Block, error) {
	const fixed = 16*4 + 8
	if len(buf) < fixed {
		return Block{}, agenterr.New(agenterr.KindShortRead, "block body too short")
	}
	id, _ := IDFromBytes(buf[0:16])
	prev, _ := IDFromBytes(buf[16:32])
	next, _ := IDFromBytes(buf[32:48])
	first, _ := IDFromBytes(buf[48:64])
	height := binary.BigEndian.Uint64(buf[64:72])
	cert := append([]byte(nil), buf[72:]...)
	return Block{ID: id, Prev: prev, Next: next, FirstTxnID: first, Height: height, Cert: cert}, nil
}

func encodeTransactionBody(t Transaction) []byte {
	out := make([]byte, 0, 16*5+len(t.Cert))
	out = append(out, t.ID.Bytes()...)
	out = append(out, t.Prev.Bytes()...)
	out = append(out, t.Next.Bytes()...)
	out = append(out, t.ArtifactID.Bytes()...)
	out = append(out, t.BlockID.Bytes()...)
	out = append(out, t.Cert...)
	return out
}

// DecodeTransactionBody parses a MethodTransactionByID or
// MethodTransactionQueueFirst response body back into a Transaction, the
// inverse of encodeTransactionBody.
func DecodeTransactionBody(buf []byte) (Transaction, error) {
	const fixed = 16 * 5
	if len(buf) < fixed {
		return Transaction{}, agenterr.New(agenterr.KindShortRead, "transaction body too short")
	}
	id, _ := IDFromBytes(buf[0:16])
	prev, _ := IDFromBytes(buf[16:32])
	next, _ := IDFromBytes(buf[32:48])
	artifact, _ := IDFromBytes(buf[48:64])
	block, _ := IDFromBytes(buf[64:80])
	cert := append([]byte(nil), buf[80:]...)
	return Transaction{ID: id, Prev: prev, Next: next, ArtifactID: artifact, BlockID: block, Cert: cert}, nil
}

func encodeArtifactBody(a Artifact) []byte {
	out := make([]byte, 0, 16*3+8+8+4)
	out = append(out, a.ID.Bytes()...)
	out = append(out, a.TxnFirst.Bytes()...)
	out = append(out, a.TxnLatest.Bytes()...)
	var hf, hl [8]byte
	binary.BigEndian.PutUint64(hf[:], a.HeightFirst)
	binary.BigEndian.PutUint64(hl[:], a.HeightLatest)
	out = append(out, hf[:]...)
	out = append(out, hl[:]...)
	var sl [4]byte
	binary.BigEndian.PutUint32(sl[:], a.StateLatest)
	out = append(out, sl[:]...)
	return out
}
