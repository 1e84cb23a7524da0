package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the command surface the REPL dispatches to.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context, args []string) error
	Login(ctx context.Context, args []string) error
	Recover(ctx context.Context, args []string) error
	AddEntry(ctx context.Context, args []string) error
	EditEntry(ctx context.Context, args []string) error
	DeleteEntry(ctx context.Context, args []string) error
	RestoreEntry(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Query(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Attach(ctx context.Context, args []string) error
	Media(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	ExportKeys(ctx context.Context, args []string) error
	ImportKeys(ctx context.Context, args []string) error
	ChangePassword(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
}

const (
	helpGuest = "Available commands: register, login, recover, importkeys, exit"
	helpUser  = "Available commands: add, edit, delete, restore, (l)ist, query, show, attach, media, sync, status, " +
		"exportkeys, importkeys, passwd, logout, exit"
)

// runREPL starts a simple read–eval–print loop for the JournalKeeper CLI.
//
// It reads a line from reader, takes the first token as the command and
// the rest as its arguments, and dispatches to methods on 'a'. Commands that
// need a signed-in user are refused until login. The loop exits on
// EOF or when the user types "exit" or "quit".
//
// Errors returned by command handlers are ignored here; handlers report
// their own errors. Commands read their prompts from the same reader.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	guest := map[string]func(context.Context, []string) error{
		"register":   a.Register,
		"login":      a.Login,
		"recover":    a.Recover,
		"importkeys": a.ImportKeys,
	}
	user := map[string]func(context.Context, []string) error{
		"add":        a.AddEntry,
		"edit":       a.EditEntry,
		"delete":     a.DeleteEntry,
		"restore":    a.RestoreEntry,
		"l":          a.List,
		"list":       a.List,
		"query":      a.Query,
		"show":       a.Show,
		"attach":     a.Attach,
		"media":      a.Media,
		"sync":       a.Sync,
		"status":     a.Status,
		"exportkeys": a.ExportKeys,
		"passwd":     a.ChangePassword,
		"logout":     a.Logout,
	}

	for {
		printlnFn(fmt.Sprintf("jk %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpUser)
			} else {
				printlnFn(helpGuest)
			}
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		if fn, ok := guest[cmd]; ok {
			_ = fn(ctx, args)
			continue
		}
		if fn, ok := user[cmd]; ok {
			if !a.isLoggedIn() {
				printlnFn("Please login first")
				continue
			}
			_ = fn(ctx, args)
			continue
		}
		printlnFn("Unknown command:", cmd)
	}
}
