// Package cli provides the interactive JournalKeeper command-line client.
//
// It wires configuration, the local database, the encryption service, the
// HTTP transport and the sync engine behind a REPL that keeps working while
// the server is unreachable. Typical flow: login (online with offline
// fallback), write entries locally, and let the background scheduler or the
// "sync" command push and pull changes.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
