// Package history records and queries the immutable audit trail of process
// instances.
//
// Writes go through a Batch bound to the engine's storage transaction, so a
// rolled back advance cycle leaves no history behind. Rows are never updated
// except for the single end time of a historic process instance.
//
// Reads go through Service, which opens its own read transactions.
package history
