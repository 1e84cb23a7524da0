// Package recoverycodes stores the SHA-256 hashes of one-time recovery codes.
package recoverycodes

import "context"

type Repository interface {
	// Replace drops every code of userID and stores hashes instead.
	Replace(ctx context.Context, userID string, hashes []string) error
	// Redeem marks an unused code as used. An unknown or spent code yields
	// common.ErrorNotFound.
	Redeem(ctx context.Context, userID, hash string) error
	// Remaining counts the unused codes of userID.
	Remaining(ctx context.Context, userID string) (int, error)
}
