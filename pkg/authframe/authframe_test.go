package authframe_test

import (
	"bytes"
	"testing"

	"github.com/blockwell/agentd/pkg/authframe"
	"github.com/blockwell/agentd/pkg/wire"
	"github.com/stretchr/testify/require"
)

func sharedSecret() []byte {
	s := make([]byte, 32)
	for i := range s {
		s[i] = byte(i)
	}
	return s
}

func TestWriteReadAuthedRoundTrip(t *testing.T) {
	secret := sharedSecret()
	sender, err := authframe.NewEndpoint(secret)
	require.NoError(t, err)
	receiver, err := authframe.NewEndpoint(secret)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := wire.NewWriter(&buf, wire.Nonblock, 0)
	r := wire.NewReader(&buf, wire.Nonblock, 0)

	require.NoError(t, authframe.WriteAuthed(w, sender, []byte("hello")))
	plaintext, err := authframe.ReadAuthed(r, receiver)
	require.NoError(t, err)
	require.Equal(t, "hello", string(plaintext))
	require.EqualValues(t, 1, sender.SendNonce())
	require.EqualValues(t, 1, receiver.RecvNonce())
}

// TestAuthenticatedReplayRejection exercises the replay-rejection scenario.
func TestAuthenticatedReplayRejection(t *testing.T) {
	secret := sharedSecret()
	sender, err := authframe.NewEndpoint(secret)
	require.NoError(t, err)
	receiver, err := authframe.NewEndpoint(secret)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := wire.NewWriter(&buf, wire.Nonblock, 0)

	var frames [][]byte
	for i := 0; i < 6; i++ {
		buf.Reset()
		require.NoError(t, authframe.WriteAuthed(w, sender, []byte("msg")))
		frame := make([]byte, buf.Len())
		copy(frame, buf.Bytes())
		frames = append(frames, frame)
	}

	for i, frame := range frames {
		r := wire.NewReader(bytes.NewReader(frame), wire.Nonblock, 0)
		_, err := authframe.ReadAuthed(r, receiver)
		require.NoError(t, err, "frame %d", i)
	}
	require.EqualValues(t, 6, receiver.RecvNonce())

	// Resend the frame at iv=5 again: recvNonce is now 6, so the replayed
	// frame's embedded iv (5) no longer matches and must be rejected.
	replay := wire.NewReader(bytes.NewReader(frames[5]), wire.Nonblock, 0)
	_, err = authframe.ReadAuthed(replay, receiver)
	require.Error(t, err)
	require.EqualValues(t, 6, receiver.RecvNonce(), "recvNonce must not advance on a rejected frame")
}

func TestTamperedCiphertextFailsMAC(t *testing.T) {
	secret := sharedSecret()
	sender, err := authframe.NewEndpoint(secret)
	require.NoError(t, err)
	receiver, err := authframe.NewEndpoint(secret)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := wire.NewWriter(&buf, wire.Nonblock, 0)
	require.NoError(t, authframe.WriteAuthed(w, sender, []byte("hello")))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF

	r := wire.NewReader(bytes.NewReader(raw), wire.Nonblock, 0)
	_, err = authframe.ReadAuthed(r, receiver)
	require.Error(t, err)
}
