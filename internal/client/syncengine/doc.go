// Package syncengine reconciles the local entry store with the sync server.
//
// A pass runs strictly in order: upload queued operations, download remote
// changes page by page, reconcile the conflicts found while downloading, and
// record the checkpoint. At most one pass runs at a time; a request that
// arrives during a pass returns immediately. Cancellation is honoured between
// phases and between items, never in the middle of one.
//
// Conflicts are resolved last-write-wins on UpdatedAt with ties going to the
// server copy. The losing edit is discarded, not merged.
package syncengine
