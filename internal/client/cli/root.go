package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	s := ""
	a.mu.Lock()
	if a.session != nil {
		s = a.session.Username + " "
	}
	a.mu.Unlock()
	if m := a.Mode(); m != "" {
		s = s + string(m)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// Root greets the user, offers a login and runs the REPL. The connectivity
// watcher runs for as long as the REPL does.
func (a *App) Root(ctx context.Context) {
	a.info("Welcome to JournalKeeper CLI (type 'help' for commands)")

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(watchCtx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
}
