package dataservice

import "github.com/blockwell/agentd/internal/agenterr"

// ErrNotFound is returned by Store lookups that find nothing for the
// given key.
var ErrNotFound = agenterr.New(agenterr.KindNotFound, "not found")

// ErrNotAuthorized is returned by the dispatcher when the calling child
// context lacks the capability bit a method requires.
var ErrNotAuthorized = agenterr.New(agenterr.KindNotAuthorized, "capability not held")

// ErrCapabilityMismatch is returned when a child-context creation request
// carries a capability template that does not set CHILD_CONTEXT_CREATE.
var ErrCapabilityMismatch = agenterr.New(agenterr.KindCapabilityMismatch, "template lacks CHILD_CONTEXT_CREATE")
