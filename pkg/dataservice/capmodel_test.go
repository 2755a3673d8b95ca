package dataservice_test

import (
	"testing"

	"github.com/blockwell/agentd/pkg/capset"
	"github.com/blockwell/agentd/pkg/dataservice"
	"github.com/stretchr/testify/require"
)

// TestChildCapsAreSubsetOfRootAndCannotRecreate exercises the
// capability-reduction invariant at the dataservice layer: a child's caps
// are a strict subset of whatever mask was supplied, CHILD_CONTEXT_CREATE
// is forcibly cleared even when requested, and the child cannot mint
// further children.
func TestChildCapsAreSubsetOfRootAndCannotRecreate(t *testing.T) {
	root := dataservice.RootContextInit(dataservice.NewMemStore())

	mask := capset.AllTrue()
	offset, err := root.ChildContextCreate(mask)
	require.NoError(t, err)

	childCaps, err := root.ChildCaps(offset)
	require.NoError(t, err)
	require.False(t, childCaps.Test(capset.ChildContextCreate))
	require.True(t, childCaps.Test(capset.BlockRead))
}

func TestChildContextCreateRejectsMaskWithoutCreateBit(t *testing.T) {
	root := dataservice.RootContextInit(dataservice.NewMemStore())

	mask := capset.AllTrue().WithClear(capset.ChildContextCreate)
	_, err := root.ChildContextCreate(mask)
	require.ErrorIs(t, err, dataservice.ErrCapabilityMismatch)
}

func TestChildContextCreateRequiresRootCapability(t *testing.T) {
	root := dataservice.RootContextInit(dataservice.NewMemStore())
	require.NoError(t, root.ReduceCaps(capset.AllTrue().WithClear(capset.ChildContextCreate)))

	_, err := root.ChildContextCreate(capset.AllTrue())
	require.ErrorIs(t, err, dataservice.ErrNotAuthorized)
}

func TestReduceCapsIsMonotone(t *testing.T) {
	root := dataservice.RootContextInit(dataservice.NewMemStore())

	require.NoError(t, root.ReduceCaps(capset.AllTrue().WithClear(capset.BlockWrite)))
	require.False(t, root.Caps().Test(capset.BlockWrite))

	// Attempting to "grow" via a mask that has BlockWrite set again must
	// not resurrect it: Reduce is AND, never OR.
	require.NoError(t, root.ReduceCaps(capset.AllTrue()))
	require.False(t, root.Caps().Test(capset.BlockWrite))
}

func TestChildContextCloseFreesSlotForReuse(t *testing.T) {
	root := dataservice.RootContextInit(dataservice.NewMemStore())

	offset, err := root.ChildContextCreate(capset.AllTrue())
	require.NoError(t, err)

	require.NoError(t, root.ChildContextClose(offset))

	_, err = root.ChildCaps(offset)
	require.Error(t, err)

	offset2, err := root.ChildContextCreate(capset.AllTrue())
	require.NoError(t, err)
	require.Equal(t, offset, offset2)
}

// TestUnauthorizedTransactionSubmitIsRejectedWithoutSideEffects exercises
// the case where a child lacking TRANSACTION_SUBMIT must be rejected by
// Authorize before any store mutation happens.
func TestUnauthorizedTransactionSubmitIsRejectedWithoutSideEffects(t *testing.T) {
	root := dataservice.RootContextInit(dataservice.NewMemStore())

	mask := capset.AllTrue().WithClear(capset.TransactionSubmit)
	offset, err := root.ChildContextCreate(mask)
	require.NoError(t, err)

	err = root.Authorize(offset, capset.TransactionSubmit)
	require.ErrorIs(t, err, dataservice.ErrNotAuthorized)
}
