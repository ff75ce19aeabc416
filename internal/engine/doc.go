// Package engine runs a batch: every item directory of a source archive
// through the registered actions, one item at a time in lexical order.
//
// A run moves through fixed stages:
//
//	Init -> AllocateUndoDir -> ProcessItems -> EmitUndoCommand -> Done
//
// AllocateUndoDir and EmitUndoCommand are skipped for dry runs and when
// undo is suppressed, either by flag or by a suppress_undo marker at the
// source root.
//
// Each item gets its own repo.Session. The session is committed only after
// every action succeeded and the undo sub-archive was written; any failure
// rolls it back, removes the partial undo sub-archive and is recorded on
// the item's ItemResult. Item failures never stop the batch.
package engine
