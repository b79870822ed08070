// Package engine advances process instances through their flow graphs.
//
// An instance moves through three node kinds:
//   - START auto-advances along its single outgoing flow
//   - USER_TASK creates a Task and suspends the instance
//   - END terminates the instance
//
// # Advance cycles
//
// Start, CompleteTask and SetVariables each run one advance cycle: the
// instance is locked, the cycle's writes (instance and task rows, variables,
// history) happen inside a single storage transaction, and listeners are
// notified only after the commit. A failed cycle leaves nothing behind.
//
// Locking is per instance. Cycles on different instances run concurrently;
// cycles on the same instance queue on an in-process lock, and on PostgreSQL
// also on the instance row, so that several processes can share a database.
//
// # Ordering
//
// History rows are stamped with a logical Clock that is resumed from the
// store on startup and raised to an instance's last seq before each cycle.
// Wall time comes from a TimeSource and is clamped per instance so history
// never goes backwards.
package engine
