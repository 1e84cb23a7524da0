package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/journalkeeper/internal/client/client"
	"github.com/dmitrijs2005/journalkeeper/internal/client/config"
	"github.com/dmitrijs2005/journalkeeper/internal/client/encryption"
	"github.com/dmitrijs2005/journalkeeper/internal/client/keystore"
	"github.com/dmitrijs2005/journalkeeper/internal/client/services"
	"github.com/dmitrijs2005/journalkeeper/internal/client/store"
	"github.com/dmitrijs2005/journalkeeper/internal/client/syncengine"
	"github.com/dmitrijs2005/journalkeeper/internal/filex"
	"github.com/dmitrijs2005/journalkeeper/internal/logging"
	"github.com/fatih/color"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

const maxAttachmentSize = 50 << 20

// sessionFactory opens the entry service of a signed-in user and starts its
// background sync. stop ends that work and trigger asks for an early pass.
type sessionFactory func(ctx context.Context, s *services.Session) (es services.EntryService, stop, trigger func())

type App struct {
	config  *config.Config
	log     logging.Logger
	auth    services.AuthService
	open    sessionFactory
	closers []func() error

	mu      sync.Mutex
	mode    Mode
	session *services.Session
	entries services.EntryService
	stop    func()
	trigger func()

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local database and wires the transport, encryption,
// auth and sync layers.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	dbPath, err := filex.EnsureParentDir(c.DBPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, dbPath)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	api, err := client.NewHTTPClient(c.ServerURL, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ks := keystore.NewMetadataKeyStore(st.Repos().Metadata)
	enc := encryption.NewService(ks, encryption.WithLogger(log))
	auth := services.NewAuthService(api, st, ks, enc)

	a := &App{
		config:  c,
		log:     log,
		auth:    auth,
		closers: []func() error{st.Close},
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}

	a.open = func(ctx context.Context, s *services.Session) (services.EntryService, func(), func()) {
		engine := syncengine.New(st, api, enc, syncengine.Config{
			OwnerID:     s.UserID,
			MaxAttempts: c.MaxAttempts,
			RetryBase:   c.RetryBase,
			RetryMax:    c.RetryMax,
		}, log)
		es := services.NewEntryService(st, enc, engine, api, s.UserID, log)

		if c.SyncInterval <= 0 {
			return es, func() {}, nil
		}

		sched := syncengine.NewScheduler(engine, c.SyncInterval, c.SyncTimeout)
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		go sched.Run(runCtx)
		return es, cancel, sched.Trigger
	}

	return a, nil
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	trigger := a.trigger
	a.mu.Unlock()

	if !changed {
		return
	}
	a.info("Switched to %s mode", mode)
	if mode == ModeOnline && trigger != nil {
		trigger()
	}
}

// Run shows the REPL until the user exits, then releases local resources.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)
	a.Root(ctx)
}

// Close stops background sync and closes the transport and the database.
func (a *App) Close(ctx context.Context) {
	a.endSession()
	if err := a.auth.Close(ctx); err != nil {
		a.log.Warn(ctx, "close transport", "error", err)
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn(ctx, "close", "error", err)
		}
	}
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil
}

func (a *App) startSession(ctx context.Context, s *services.Session, mode Mode) {
	a.endSession()

	es, stop, trigger := a.open(ctx, s)

	a.mu.Lock()
	a.session = s
	a.entries = es
	a.stop = stop
	a.trigger = trigger
	a.mu.Unlock()

	a.setMode(mode)
}

func (a *App) endSession() {
	a.mu.Lock()
	stop := a.stop
	a.session, a.entries, a.stop, a.trigger = nil, nil, nil, nil
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (a *App) entryService() services.EntryService {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entries
}

// StartOnlineStatusWatcher pings the server every interval and flips the
// connectivity mode. Coming back online triggers a sync.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.auth.Ping(pingCtx)
			cancel()

			if err != nil {
				if a.Mode() == ModeOnline {
					a.setMode(ModeOffline)
				}
			} else if a.isLoggedIn() && a.Mode() != ModeOnline {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (a *App) info(format string, args ...any) {
	fmt.Fprintln(a.out, color.CyanString("→")+" "+fmt.Sprintf(format, args...))
}

func (a *App) success(format string, args ...any) {
	fmt.Fprintln(a.out, color.GreenString("✓")+" "+fmt.Sprintf(format, args...))
}

func (a *App) warn(format string, args ...any) {
	fmt.Fprintln(a.out, color.YellowString("!")+" "+fmt.Sprintf(format, args...))
}

// fail reports err to the user and returns it.
func (a *App) fail(err error) error {
	fmt.Fprintln(a.out, color.RedString("✗")+" "+err.Error())
	return err
}
