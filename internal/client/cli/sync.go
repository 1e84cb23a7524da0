package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/syncengine"
	"github.com/fatih/color"
)

// Sync runs an incremental pass, or a full one with "full". "sync <id>"
// pushes a single entry.
func (a *App) Sync(ctx context.Context, args []string) error {
	es := a.entryService()

	var (
		rep syncengine.Report
		err error
	)
	switch {
	case len(args) == 0:
		rep, err = es.SyncIncremental(ctx)
	case args[0] == "full":
		rep, err = es.SyncFull(ctx)
	default:
		rep, err = es.UploadEntry(ctx, args[0])
	}
	if err != nil {
		return a.fail(err)
	}
	if rep.AlreadyRunning {
		a.info("A sync is already running")
		return nil
	}

	a.success("Sync done: %d uploaded, %d downloaded, %d deleted", rep.Uploaded, rep.Downloaded, rep.Deleted)
	if rep.Conflicts > 0 {
		a.warn("%d conflict(s) resolved by last writer wins", rep.Conflicts)
	}
	if rep.Skipped > 0 {
		a.warn("%d remote entr(ies) could not be read and were skipped", rep.Skipped)
	}
	if rep.Failed > 0 {
		a.warn("%d operation(s) failed permanently, see 'status'", rep.Failed)
	}
	return nil
}

// Status prints the sync state and the operations that gave up.
func (a *App) Status(ctx context.Context, _ []string) error {
	es := a.entryService()
	st := es.State()

	fmt.Fprintf(a.out, "%s %s\n", color.CyanString("Mode:"), a.Mode())
	fmt.Fprintf(a.out, "%s %d\n", color.CyanString("Pending:"), st.PendingCount)
	last := "never"
	if !st.LastSyncAt.IsZero() {
		last = st.LastSyncAt.Local().Format(time.DateTime)
	}
	fmt.Fprintf(a.out, "%s %s\n", color.CyanString("Last sync:"), last)
	if st.IsSyncing {
		a.info("Sync in progress")
	}
	if st.LastError != "" {
		fmt.Fprintf(a.out, "%s %s\n", color.CyanString("Last error:"), color.RedString(st.LastError))
	}

	failed, err := es.FailedOperations(ctx)
	if err != nil {
		return a.fail(err)
	}
	for _, op := range failed {
		a.warn("%s %s %s failed after %d attempt(s): %s", op.Kind, op.EntityType, op.EntityID, op.RetryCount, op.LastError)
	}
	return nil
}
