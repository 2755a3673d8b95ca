package dataservice

import "github.com/blockwell/agentd/pkg/capset"

// MethodID names a dataservice request's operation. Values are arbitrary but
// stable across the wire and must never be renumbered once deployed.
type MethodID uint32

const (
	MethodRootContextInit MethodID = iota + 1
	MethodRootReduceCaps
	MethodChildCreate
	MethodChildClose
	MethodBlockReadByID
	MethodBlockIDByHeight
	MethodLatestBlockID
	MethodTransactionByID
	MethodTransactionQueueFirst
	MethodTransactionSubmit
	MethodTransactionPromote
	MethodGlobalSettingRead
	MethodGlobalSettingWrite
	MethodArtifactRead
)

// capabilityFor maps a child-scoped method to the capability bit the
// dispatcher must find set before running it. Root-level methods (init, reduce caps,
// child create) are not listed here: reduce caps and child create are
// authorized against the root's own caps inside
// Root.ReduceCaps/ChildContextCreate, and init needs no capability.
var capabilityFor = map[MethodID]capset.Bit{
	MethodChildClose: capset.ChildContextClose,
	MethodBlockReadByID: capset.BlockRead,
	MethodBlockIDByHeight: capset.BlockIDByHeightRead,
	MethodLatestBlockID: capset.LatestBlockIDRead,
	MethodTransactionByID: capset.TransactionRead,
	MethodTransactionQueueFirst: capset.TransactionQueueFirstRead,
	MethodTransactionSubmit: capset.TransactionSubmit,
	MethodTransactionPromote: capset.TransactionPromote,
	MethodGlobalSettingRead: capset.GlobalSettingRead,
	MethodGlobalSettingWrite: capset.GlobalSettingWrite,
	MethodArtifactRead: capset.BlockRead,
}
