package privsep_test

import (
	"os"
	"testing"

	"github.com/blockwell/agentd/pkg/privsep"
	"github.com/stretchr/testify/require"
)

func TestEnsureRunningAsRootFailsWhenNotRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; negative case not exercisable")
	}
	require.Error(t, privsep.EnsureRunningAsRoot())
}

func TestSetFdsDup2sOntoMappedSlot(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	const mapped = 250
	err = privsep.SetFds(privsep.FdPair{Curr: int(r.Fd()), Mapped: mapped})
	require.NoError(t, err)

	// Verify the mapped slot is now readable as the pipe's read end.
	mappedFile := os.NewFile(mapped, "mapped")
	defer mappedFile.Close()

	go func() {
		w.Write([]byte("x"))
	}()

	buf := make([]byte, 1)
	n, err := mappedFile.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte('x'), buf[0])
}

func TestSetFdsRejectsNegativeMappedForValidCurr(t *testing.T) {
	err := privsep.SetFds(privsep.FdPair{Curr: 0, Mapped: -1})
	require.Error(t, err)
}

func TestSetFdsSkipsNegativeCurr(t *testing.T) {
	err := privsep.SetFds(privsep.FdPair{Curr: -1, Mapped: -1})
	require.NoError(t, err)
}

func TestServiceBootstrapFailsOnUnknownUser(t *testing.T) {
	err := privsep.ServiceBootstrap("no-such-agentd-user", "no-such-agentd-group", 2, "/bin/true", "dataservice")
	require.Error(t, err)
}
