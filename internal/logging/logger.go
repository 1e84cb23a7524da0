// Package logging is the structured logger shared by the client and the sync
// server. The client logs through slog, the server through zap.
package logging

import "context"

// Logger takes a message plus alternating key/value args:
//
//	log.Info(ctx, "sync finished", "uploaded", n, "conflicts", c)
type Logger interface {
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that adds args to every record.
	With(args ...any) Logger
}

// Nop discards everything.
type Nop struct{}

func (Nop) Info(context.Context, string, ...any)  {}
func (Nop) Warn(context.Context, string, ...any)  {}
func (Nop) Error(context.Context, string, ...any) {}
func (n Nop) With(...any) Logger                  { return n }
