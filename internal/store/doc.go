// Package store provides the SQLite-backed repository the batch engine
// mutates.
//
// The store holds items and their handles, the metadata registry (schemas
// and fields) with per-item values, bundles and bitstreams, bitstream
// formats, groups and resource policies, plus a ledger of batch runs.
// Bitstream content lives outside the database in a content-addressed asset
// store keyed by digest.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All repository mutations happen inside a Session, which wraps one SQL
// transaction. Metadata values keep an explicit place so reads are ordered
// deterministically: ORDER BY place ASC, id ASC.
package store
