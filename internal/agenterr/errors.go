// Package agenterr defines the error taxonomy shared by every agentd
// package and the dataservice status-code encoding used on the wire.
package agenterr

import (
	"errors"
	"fmt"
)

// Kind names one entry of the error taxonomy. Kinds are not Go error types;
// every agentd package wraps a Kind in a normal error via New/Wrap so callers
// can still use errors.Is against the sentinel below.
type Kind int

const (
	KindUnknown Kind = iota
	KindGeneral
	KindOutOfMemory
	KindWouldBlock
	KindShortRead
	KindShortWrite
	KindReadFailed
	KindWriteFailed
	KindUnexpectedType
	KindUnexpectedSize
	KindAuthFailed
	KindNotAuthorized
	KindInvalidParameter
	KindInvalidSize
	KindChildNotFound
	KindNotFound
	KindCapabilityMismatch
	KindProcessAlreadySpawned
	KindProcessNotActive
	KindPrivsepChrootFailed
	KindPrivsepSetuidFailed
	KindPrivsepSetgidFailed
	KindPrivsepSetfdsFailed
	KindPrivsepExecFailed
	KindPrivsepCloseStdFailed
	KindEventLoopInitFailed
	KindEventLoopAddFailed
	KindEventLoopRunFailed
	KindSocketpairFailed
	KindForkFailed
	KindRunningAsRootRequired
	KindPidFileLocked
)

func (k Kind) String() string {
	switch k {
	case KindOutOfMemory:
		return "out-of-memory"
	case KindWouldBlock:
		return "would-block"
	case KindShortRead:
		return "short-read"
	case KindShortWrite:
		return "short-write"
	case KindReadFailed:
		return "read-failed"
	case KindWriteFailed:
		return "write-failed"
	case KindUnexpectedType:
		return "unexpected-type"
	case KindUnexpectedSize:
		return "unexpected-size"
	case KindAuthFailed:
		return "auth-failed"
	case KindNotAuthorized:
		return "not-authorized"
	case KindInvalidParameter:
		return "invalid-parameter"
	case KindInvalidSize:
		return "invalid-size"
	case KindChildNotFound:
		return "child-not-found"
	case KindNotFound:
		return "not-found"
	case KindCapabilityMismatch:
		return "capability-mismatch"
	case KindProcessAlreadySpawned:
		return "process-already-spawned"
	case KindProcessNotActive:
		return "process-not-active"
	case KindPrivsepChrootFailed:
		return "privsep-chroot-failed"
	case KindPrivsepSetuidFailed:
		return "privsep-setuid-failed"
	case KindPrivsepSetgidFailed:
		return "privsep-setgid-failed"
	case KindPrivsepSetfdsFailed:
		return "privsep-setfds-failed"
	case KindPrivsepExecFailed:
		return "privsep-exec-failed"
	case KindPrivsepCloseStdFailed:
		return "privsep-close-std-failed"
	case KindEventLoopInitFailed:
		return "event-loop-init-failed"
	case KindEventLoopAddFailed:
		return "event-loop-add-failed"
	case KindEventLoopRunFailed:
		return "event-loop-run-failed"
	case KindSocketpairFailed:
		return "socketpair-failed"
	case KindForkFailed:
		return "fork-failed"
	case KindRunningAsRootRequired:
		return "running-as-root-required"
	case KindPidFileLocked:
		return "pid-file-locked"
	default:
		return "unknown"
	}
}

// Error carries a Kind plus an optional wrapped cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("agentd: %s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	if e.Msg != "" {
		return fmt.Sprintf("agentd: %s: %s", e.Kind, e.Msg)
	}
	return "agentd: " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, agenterr.New(KindWouldBlock, "")).
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.Kind == e.Kind
	}
	return false
}

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// ServiceID namespaces status codes.
type ServiceID uint32

const (
	ServiceGeneral ServiceID = iota
	ServiceIPC
	ServiceSupervisor
	ServiceData
	ServiceConfig
	ServiceAuth
	ServiceLog
	ServiceConsensus
	ServiceApplication
	ServiceProtocol
	ServiceListener
)

// StatusOK is the zero status: success.
const StatusOK uint32 = 0

// Status encodes a service+reason pair into the wire status-code format:
// 0x08000000 | (service_id << 16) | reason.
func Status(svc ServiceID, reason uint16) uint32 {
	return 0x08000000 | (uint32(svc) << 16) | uint32(reason)
}

// StatusForKind maps a Kind to a reason code; the caller supplies the
// service the error occurred in.
func StatusForKind(svc ServiceID, kind Kind) uint32 {
	if kind == KindUnknown {
		return StatusOK
	}
	return Status(svc, uint16(kind))
}
