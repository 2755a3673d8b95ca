// Package privsep implements the privilege-separation primitives used by
// the supervisor's privileged child: user/group lookup, chroot, privilege
// drop, descriptor protection/remap, and the private re-exec into a
// specific sub-command.
//
// Built on golang.org/x/sys/unix for every privileged syscall, in the
// style nestybox-sysbox-libs uses for Setuid/Setgid/Chroot-adjacent
// operations, rather than the lower-level syscall package directly.
package privsep

import (
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/blockwell/agentd/internal/agenterr"
)

// LookupUserGroup resolves user and group names to numeric ids via the
// host's user/group database.
func LookupUserGroup(userName, groupName string) (uid, gid int, err error) {
	u, err := user.Lookup(userName)
	if err != nil {
		return 0, 0, agenterr.Wrap(agenterr.KindInvalidParameter, "lookup user", err)
	}
	uid, err = strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, agenterr.Wrap(agenterr.KindInvalidParameter, "parse uid", err)
	}

	g, err := user.LookupGroup(groupName)
	if err != nil {
		return 0, 0, agenterr.Wrap(agenterr.KindInvalidParameter, "lookup group", err)
	}
	gid, err = strconv.Atoi(g.Gid)
	if err != nil {
		return 0, 0, agenterr.Wrap(agenterr.KindInvalidParameter, "parse gid", err)
	}
	return uid, gid, nil
}

// Chroot changes the working directory to dir, then changes the
// filesystem root to dir. Both steps must succeed.
func Chroot(dir string) error {
	if err := unix.Chdir(dir); err != nil {
		return agenterr.Wrap(agenterr.KindPrivsepChrootFailed, "chdir", err)
	}
	if err := unix.Chroot(dir); err != nil {
		return agenterr.Wrap(agenterr.KindPrivsepChrootFailed, "chroot", err)
	}
	return nil
}

// DropPrivileges sets the effective and real group id, then the effective
// and real user id, in that order. On Linux, Setgid/Setuid already set
// both the real and effective ids, so no separate "lower effective first"
// step is required; the ordering (group before user) is preserved because
// a process that has already dropped its uid may no longer be permitted
// to change its gid.
func DropPrivileges(uid, gid int) error {
	if err := unix.Setgid(gid); err != nil {
		return agenterr.Wrap(agenterr.KindPrivsepSetgidFailed, "setgid", err)
	}
	if err := unix.Setuid(uid); err != nil {
		return agenterr.Wrap(agenterr.KindPrivsepSetuidFailed, "setuid", err)
	}
	return nil
}

// FdPair is a (current, mapped) descriptor pair for SetFds.
type FdPair struct {
	Curr   int
	Mapped int
}

// ProtectDescriptors duplicates each referenced descriptor to an arbitrary
// high slot (starting at 500) and closes the original, so a subsequent
// SetFds cannot clobber a descriptor another argument still points at.
// Each *int is updated in place to the new slot.
func ProtectDescriptors(fds ...*int) error {
	next := 500
	for _, fp := range fds {
		if fp == nil {
			continue
		}
		nfd, err := unix.Dup(*fp)
		if err != nil {
			return agenterr.Wrap(agenterr.KindPrivsepSetfdsFailed, "dup for protect", err)
		}
		// Force the duplicate onto next via dup2-style remap so slots are
		// predictable, then advance past it.
		if err := unix.Dup2(nfd, next); err != nil {
			unix.Close(nfd)
			return agenterr.Wrap(agenterr.KindPrivsepSetfdsFailed, "dup2 for protect", err)
		}
		if nfd != next {
			unix.Close(nfd)
		}
		unix.Close(*fp)
		*fp = next
		next++
	}
	return nil
}

// SetFds duplicates each pair's Curr descriptor onto Mapped, in order. A
// caller bug (Mapped < 0 while Curr >= 0) is reported rather than silently
// ignored.
func SetFds(pairs ...FdPair) error {
	for _, p := range pairs {
		if p.Curr < 0 {
			continue
		}
		if p.Mapped < 0 {
			return agenterr.New(agenterr.KindPrivsepSetfdsFailed, "negative mapped fd for valid curr fd")
		}
		if err := unix.Dup2(p.Curr, p.Mapped); err != nil {
			return agenterr.Wrap(agenterr.KindPrivsepSetfdsFailed, "dup2", err)
		}
	}
	return nil
}

// CloseStandardFds closes file descriptors 0, 1, 2.
func CloseStandardFds() error {
	for _, fd := range []int{0, 1, 2} {
		if err := unix.Close(fd); err != nil {
			return agenterr.Wrap(agenterr.KindPrivsepCloseStdFailed, "close standard fd", err)
		}
	}
	return nil
}

// CloseOtherFds closes every descriptor strictly greater than fd up to the
// OS-defined maximum.
func CloseOtherFds(fd int) error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return agenterr.Wrap(agenterr.KindPrivsepSetfdsFailed, "getrlimit nofile", err)
	}
	max := int(rlim.Cur)
	for i := fd + 1; i < max; i++ {
		unix.Close(i)
	}
	return nil
}

// ExecPrivate sets PATH and LD_LIBRARY_PATH and replaces the current
// process image with "agentd -P <sub>". On success this call does not
// return.
func ExecPrivate(agentdPath, sub string) error {
	env := []string{
		"PATH=/bin",
		"LD_LIBRARY_PATH=/lib:/usr/libexec",
	}
	argv := []string{agentdPath, "-P", sub}
	err := unix.Exec(agentdPath, argv, env)
	return agenterr.Wrap(agenterr.KindPrivsepExecFailed, "exec private", err)
}

// EnsureRunningAsRoot fails unless the calling process is uid 0, the
// supervisor's precondition.
func EnsureRunningAsRoot() error {
	if os.Geteuid() != 0 {
		return agenterr.New(agenterr.KindRunningAsRootRequired, "supervisor must run as uid 0")
	}
	return nil
}
