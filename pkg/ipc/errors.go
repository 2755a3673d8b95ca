package ipc

import "github.com/blockwell/agentd/pkg/wire"

// ErrWouldBlock is re-exported from pkg/wire so callers of this package
// need not import wire directly for control-flow comparisons.
var ErrWouldBlock = wire.ErrWouldBlock
