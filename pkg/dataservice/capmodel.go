package dataservice

import (
	"sync"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/pkg/capset"
)

// Root owns the store and the child arena. Rather than a child holding a
// pointer back to its root (a reference-cycle-prone design), children are
// records in an arena owned by the root and addressed by the
// caller-facing offset carried on every dataservice request. A child
// never holds a reference to Root at all; it is handed its offset and
// looks itself up through whichever Root the caller supplies.
type Root struct {
	mu    sync.Mutex
	store Store
	caps  capset.Set

	children []childSlot
	free     []uint32
}

type childSlot struct {
	caps  capset.Set
	alive bool
}

// RootContextInit opens store and returns a Root with its capability set
// to all-true.
func RootContextInit(store Store) *Root {
	return &Root{
		store: store,
		caps:  capset.AllTrue(),
	}
}

// Caps returns the root's current capability set.
func (r *Root) Caps() capset.Set {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.caps
}

// ReduceCaps requires ROOT_CONTEXT_REDUCE_CAPS and sets
// root.caps ← root.caps ∧ mask. The reduction is monotone: it can never
// grow the set, regardless of mask's contents.
func (r *Root) ReduceCaps(mask capset.Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.caps.Test(capset.RootContextReduceCaps) {
		return ErrNotAuthorized
	}
	r.caps = r.caps.Reduce(mask)
	return nil
}

// ChildContextCreate requires CHILD_CONTEXT_CREATE in root.caps, allocates
// a child with child.caps ← root.caps ∧ mask, then forcibly clears
// CHILD_CONTEXT_CREATE in the child so it cannot mint further children.
// An additional check rejects the call if mask itself does not carry
// CHILD_CONTEXT_CREATE, guarding against a recursive self-recreate
// pattern.
func (r *Root) ChildContextCreate(mask capset.Set) (offset uint32, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.caps.Test(capset.ChildContextCreate) {
		return 0, ErrNotAuthorized
	}
	if !mask.Test(capset.ChildContextCreate) {
		return 0, ErrCapabilityMismatch
	}

	childCaps := r.caps.Reduce(mask).WithClear(capset.ChildContextCreate)

	if n := len(r.free); n > 0 {
		offset = r.free[n-1]
		r.free = r.free[:n-1]
		r.children[offset] = childSlot{caps: childCaps, alive: true}
		return offset, nil
	}

	offset = uint32(len(r.children))
	r.children = append(r.children, childSlot{caps: childCaps, alive: true})
	return offset, nil
}

// ChildContextClose requires CHILD_CONTEXT_CLOSE in the child's own
// capability set, then zeroes the handle, returning the arena slot to the
// free list for reuse.
func (r *Root) ChildContextClose(offset uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, err := r.childSlot(offset)
	if err != nil {
		return err
	}
	if !slot.caps.Test(capset.ChildContextClose) {
		return ErrNotAuthorized
	}
	r.children[offset] = childSlot{}
	r.free = append(r.free, offset)
	return nil
}

func (r *Root) childSlot(offset uint32) (childSlot, error) {
	if int(offset) >= len(r.children) || !r.children[offset].alive {
		return childSlot{}, agenterr.New(agenterr.KindChildNotFound, "no such child context")
	}
	return r.children[offset], nil
}

// ChildCaps returns the capability set held by the child at offset.
func (r *Root) ChildCaps(offset uint32) (capset.Set, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, err := r.childSlot(offset)
	if err != nil {
		return capset.Set{}, err
	}
	return slot.caps, nil
}

// Authorize reports whether the child at offset holds bit. The dispatcher
// calls this before executing any method body: it looks up the child,
// checks the capability bit corresponding to the requested method, and
// rejects with not-authorized if absent.
func (r *Root) Authorize(offset uint32, bit capset.Bit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, err := r.childSlot(offset)
	if err != nil {
		return err
	}
	if !slot.caps.Test(bit) {
		return ErrNotAuthorized
	}
	return nil
}

// Store exposes the underlying Store for method bodies that have already
// passed Authorize.
func (r *Root) Store() Store {
	return r.store
}
