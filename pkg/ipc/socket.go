// Package ipc implements the framed IPC substrate over a local socket
// pair: blocking and non-blocking typed-packet transport plus out-of-band
// file-descriptor passing.
//
// Non-blocking toggling and descriptor passing are done through
// golang.org/x/sys/unix, following the syscall-wrapping idiom used
// throughout nestybox-sysbox-libs (Setnonblock, Sendmsg/Recvmsg with
// ancillary SCM_RIGHTS messages) rather than hand-rolled raw syscalls.
package ipc

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/blockwell/agentd/internal/agenterr"
)

// NewSocketpair creates a connected local stream socket pair, returning
// both ends as *os.File so callers can pass either end across fork/exec.
func NewSocketpair() (a, b *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, agenterr.Wrap(agenterr.KindSocketpairFailed, "socketpair", err)
	}
	return os.NewFile(uintptr(fds[0]), "ipc-a"), os.NewFile(uintptr(fds[1]), "ipc-b"), nil
}

// MakeNonblock clears the OS-level blocking flag on fd's descriptor.
func MakeNonblock(f *os.File) error {
	if err := unix.SetNonblock(int(f.Fd()), true); err != nil {
		return agenterr.Wrap(agenterr.KindEventLoopInitFailed, "make-noblock failed", err)
	}
	return nil
}

// MakeBlock restores the OS-level blocking flag on fd's descriptor, the
// paired operation to MakeNonblock.
func MakeBlock(f *os.File) error {
	if err := unix.SetNonblock(int(f.Fd()), false); err != nil {
		return agenterr.Wrap(agenterr.KindEventLoopInitFailed, "make-block failed", err)
	}
	return nil
}

// IsNonblock reports the current state of the O_NONBLOCK flag on f.
func IsNonblock(f *os.File) (bool, error) {
	flags, err := unix.FcntlInt(f.Fd(), unix.F_GETFL, 0)
	if err != nil {
		return false, err
	}
	return flags&unix.O_NONBLOCK != 0, nil
}

// SendDescriptor transmits fdToSend as an out-of-band SCM_RIGHTS ancillary
// message over sock, with the required non-empty dummy payload byte.
func SendDescriptor(sock *net.UnixConn, fdToSend int) error {
	rights := unix.UnixRights(fdToSend)
	_, _, err := sock.WriteMsgUnix([]byte{0}, rights, nil)
	if err != nil {
		return agenterr.Wrap(agenterr.KindWriteFailed, "send descriptor", err)
	}
	return nil
}

// RecvDescriptor receives one descriptor sent by SendDescriptor.
func RecvDescriptor(sock *net.UnixConn) (int, error) {
	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(4))
	_, oobn, _, _, err := sock.ReadMsgUnix(buf, oob)
	if err != nil {
		return -1, agenterr.Wrap(agenterr.KindReadFailed, "recv descriptor", err)
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return -1, agenterr.Wrap(agenterr.KindReadFailed, "parse ancillary message", err)
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			continue
		}
		if len(fds) > 0 {
			return fds[0], nil
		}
	}
	return -1, agenterr.New(agenterr.KindReadFailed, "no descriptor in ancillary message")
}
