// Package store provides relational storage for procflow.
//
// One implementation over database/sql serves two drivers:
//   - SQLite (github.com/mattn/go-sqlite3), the default
//   - PostgreSQL (github.com/jackc/pgx/v5/stdlib)
//
// SQL is written once with $n placeholders, numbered in order of first
// appearance, which both drivers accept. Each dialect embeds its own schema
// and records the schema version in the schema_version table.
//
// # Transactions
//
// All reads and writes go through Update or View, which run a function
// against a Tx inside one database transaction. An advance cycle of the
// engine is one Update call, so either every row it writes commits or none
// do.
//
// SQLite Update transactions begin with BEGIN IMMEDIATE (_txlock=immediate)
// so concurrent writers queue on the busy timeout instead of failing on lock
// upgrade. View runs on a second handle whose transactions begin DEFERRED,
// so in WAL mode reads see the last committed snapshot without waiting for
// writers. On PostgreSQL both share one pool and LockInstance issues
// SELECT ... FOR UPDATE.
//
// # Pool configuration
//
// PoolConfig maps onto database/sql:
//   - MaxActive: SetMaxOpenConns
//   - MaxIdle: SetMaxIdleConns
//   - WaitTimeout: deadline for acquiring a connection, plus the SQLite busy
//     timeout or PostgreSQL lock_timeout
//   - CheckoutTimeout: deadline for one transaction, after which it is
//     rolled back and its connection returned
//
// # Deterministic ordering
//
// Every list query orders by a sequence or time column followed by
// id COLLATE BINARY (SQLite) or id COLLATE "C" (PostgreSQL), so results are
// identical across runs and drivers. Empty results are empty slices, never nil.
package store
