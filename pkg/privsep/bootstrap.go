package privsep

// ServiceBootstrap is the sequence a forked service child runs before it
// becomes its final private sub-command: look up the demoted identity,
// drop to it, close any descriptor beyond the ones the child was handed,
// and exec the real service. Chroot is not repeated here: it is a
// process attribute the service already inherited from the supervisor
// that forked it, across both fork and exec.
func ServiceBootstrap(user, group string, nfds int, agentdPath, sub string) error {
	uid, gid, err := LookupUserGroup(user, group)
	if err != nil {
		return err
	}
	if err := DropPrivileges(uid, gid); err != nil {
		return err
	}
	if err := CloseOtherFds(nfds - 1); err != nil {
		return err
	}
	return ExecPrivate(agentdPath, sub)
}
