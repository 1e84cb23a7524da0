// Package client is the client side of the remote API contract.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface) to talk to
//     the JournalKeeper sync server: Register/GetSalt/Login, key material,
//     entry create/update/delete, the paged Sync call and media URLs.
//  2. A concrete HTTP/JSON implementation (see HTTPClient) that injects the
//     bearer access token, transparently refreshes it once on 401, and maps
//     status codes to sentinel errors.
//
// # Error Handling
//
// Conditions are exposed as sentinel errors matched with errors.Is:
// ErrUnavailable (network failure, 5xx, 429; also matches
// common.ErrSyncTransient), ErrUnauthorized, ErrNotFound, ErrRejected (other
// 4xx) and ErrConflict (409 on update; see ConflictError for the stored copy).
//
// HTTPClient is safe for concurrent use.
package client
