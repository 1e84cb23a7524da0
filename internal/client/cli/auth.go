package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/journalkeeper/internal/client/client"
	"github.com/dmitrijs2005/journalkeeper/internal/client/models"
	"github.com/dmitrijs2005/journalkeeper/internal/client/services"
	"github.com/fatih/color"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a username, a password and the encryption tier, then
// creates the account. End-to-end accounts get their recovery codes printed
// once.
func (a *App) Register(ctx context.Context, _ []string) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}
	tierText, err := getSimpleText(a.reader, "Encryption tier: e2e (only you hold the keys) or uce (server keeps a wrapped copy)", a.out)
	if err != nil {
		return err
	}
	tier, err := models.ParseTier(strings.ToLower(tierText))
	if err != nil {
		return a.fail(err)
	}

	codes, err := a.auth.Register(ctx, userName, password, tier)
	if err != nil {
		return a.fail(err)
	}

	a.success("Registered %s (%s)", userName, tier)
	if len(codes) > 0 {
		a.warn("Store these recovery codes somewhere safe, they are shown only once:")
		for _, c := range codes {
			fmt.Fprintln(a.out, "  "+color.YellowString(c))
		}
	}
	return nil
}

// Login prompts for credentials and tries to authenticate.
//
// The online login is tried first. If the server is unavailable it falls
// back to the locally cached credentials. The connectivity mode ends up as
// ModeOnline, ModeOffline or ModeDisabled when both fail.
func (a *App) Login(ctx context.Context, _ []string) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword("Enter password", a.out)
	if err != nil {
		return err
	}

	s, err := a.auth.OnlineLogin(ctx, userName, password)
	switch {
	case err == nil:
		a.success("Logged in as %s", userName)
		a.startSession(ctx, s, ModeOnline)
		return nil

	case errors.Is(err, services.ErrKeysNotOnDevice):
		a.warn("This device has no keys for %s", userName)
		a.info("Run 'importkeys' with a key file exported from another device")
		return a.fail(err)

	case errors.Is(err, client.ErrUnavailable):
		a.info("Server unavailable, trying offline login...")
		s, err = a.auth.OfflineLogin(ctx, userName, password)
		if err != nil {
			a.setMode(ModeDisabled)
			return a.fail(fmt.Errorf("offline login unsuccessful: %w", err))
		}
		a.success("Logged in offline as %s", userName)
		a.startSession(ctx, s, ModeOffline)
		return nil

	default:
		return a.fail(fmt.Errorf("login unsuccessful: %w", err))
	}
}

// Recover signs in with a one-time recovery code. The keys on this device
// still have to be unlocked by importing a key file.
func (a *App) Recover(ctx context.Context, _ []string) error {
	userName, err := getSimpleText(a.reader, "Enter username", a.out)
	if err != nil {
		return err
	}
	code, err := getSimpleText(a.reader, "Enter recovery code", a.out)
	if err != nil {
		return err
	}

	s, err := a.auth.Recover(ctx, userName, strings.ToUpper(code))
	if err != nil {
		return a.fail(err)
	}

	a.success("Recovery code accepted for %s, the code is now used up", userName)
	a.info("Run 'importkeys' to unlock your entries, then 'passwd' to set a new password")
	a.startSession(ctx, s, ModeOnline)
	return nil
}

// ChangePassword rewraps the keys with a new password.
func (a *App) ChangePassword(ctx context.Context, _ []string) error {
	oldPassword, err := getPassword("Current password", a.out)
	if err != nil {
		return err
	}
	newPassword, err := getPassword("New password", a.out)
	if err != nil {
		return err
	}
	repeat, err := getPassword("Repeat new password", a.out)
	if err != nil {
		return err
	}
	if newPassword != repeat {
		return a.fail(errors.New("passwords do not match"))
	}

	if err := a.auth.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		return a.fail(err)
	}
	a.success("Password changed")
	return nil
}

// ExportKeys writes the wrapped key material to a file given as the first
// argument or prompted for.
func (a *App) ExportKeys(ctx context.Context, args []string) error {
	path, err := a.argOrPrompt(args, 0, "Export to file")
	if err != nil {
		return err
	}
	data, err := a.auth.ExportKeys(ctx)
	if err != nil {
		return a.fail(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return a.fail(err)
	}
	a.success("Keys exported to %s", path)
	return nil
}

// ImportKeys installs key material exported on another device.
func (a *App) ImportKeys(ctx context.Context, args []string) error {
	path, err := a.argOrPrompt(args, 0, "Import from file")
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return a.fail(err)
	}
	password, err := getPassword("Password the keys were exported with", a.out)
	if err != nil {
		return err
	}
	if err := a.auth.ImportKeys(ctx, data, password); err != nil {
		return a.fail(err)
	}
	a.success("Keys imported")
	return nil
}

// Logout wipes the unlocked keys and stops background sync. With "forget"
// the cached offline login data is removed too.
func (a *App) Logout(ctx context.Context, args []string) error {
	a.auth.Logout(ctx)
	a.endSession()

	if len(args) > 0 && args[0] == "forget" {
		if err := a.auth.ClearOfflineData(ctx); err != nil {
			return a.fail(err)
		}
		a.success("Logged out, offline login data removed")
		return nil
	}
	a.success("Logged out")
	return nil
}

func (a *App) argOrPrompt(args []string, i int, prompt string) (string, error) {
	if len(args) > i && args[i] != "" {
		return args[i], nil
	}
	return getSimpleText(a.reader, prompt, a.out)
}
