// Package entries provides the client-side persistence layer for journal
// entries.
//
// # Overview
//
// Repository is consumed by the local store; SQLiteRepository implements it
// over a dbx.DBTX (either *sql.DB or *sql.Tx). Title and content are stored as
// serialized envelopes and never decrypted here.
//
// # Data Model
//
// Tags live in a separate entry_tags table with an explicit position so the
// ordered-set semantics survive a round trip and tag filters can use an index.
// Deletion is two-step: MarkDeleted writes a tombstone that the sync engine
// still sees; Purge removes the row once the server acknowledged the delete.
//
// Timestamps are stored as unix milliseconds.
//
// # Transactions
//
// CreateOrUpdate and Purge issue several statements; run them inside a
// transaction (see store.Store.InTx) to keep an entry and its tags consistent.
package entries
