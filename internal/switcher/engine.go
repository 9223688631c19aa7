// Package switcher rewrites Steam's login-state and auto-login files so
// that exactly one account is marked current, then restarts the client to
// apply the change.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/decktools/deckswitch/internal/storage"
	"github.com/decktools/deckswitch/internal/vdf"
)

// Request identifies the account to switch to, plus an optional game to
// launch once the new session is logged in.
type Request struct {
	SteamID     string `json:"steamId"`
	AccountName string `json:"accountName"`
	AppID       string `json:"appId,omitempty"`
}

// Outcome is the structured result returned over the request boundary. A
// failed switch never propagates as a fault; it is reported here.
type Outcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Layout locates the two state files the engine mutates.
type Layout interface {
	LoginUsersPath() string
	RegistryPath() string
}

// Restarter applies a completed switch by bouncing the Steam client.
type Restarter interface {
	Restart(ctx context.Context, appID string) error
}

// Chowner restores file ownership after a root-owned write.
type Chowner interface {
	Chown(path string) error
}

// EventStore records switch attempts for the history view.
type EventStore interface {
	SaveSwitchEvent(ev storage.SwitchEvent) error
}

// Engine is the state-mutation core. It holds no cached file state; every
// switch re-reads the files so external writes since the last call are
// honored.
type Engine struct {
	layout  Layout
	restart Restarter
	chown   Chowner
	events  EventStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an Engine. events may be nil to skip history recording.
func NewEngine(layout Layout, restart Restarter, chown Chowner, events EventStore) *Engine {
	return &Engine{
		layout:  layout,
		restart: restart,
		chown:   chown,
		events:  events,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// Switch performs the two-file mutation and triggers the restart. All
// failures are caught and returned as a failure Outcome; the caller is a
// request boundary that must always receive a response.
func (e *Engine) Switch(ctx context.Context, req Request) Outcome {
	e.logger.Info("switching account",
		"steam_id", req.SteamID,
		"account", req.AccountName,
		"app_id", req.AppID,
	)
	out := e.apply(ctx, req)
	if !out.Success {
		e.logger.Error("account switch failed", "steam_id", req.SteamID, "error", out.Error)
	}
	e.recordEvent(req, out)
	return out
}

func (e *Engine) apply(ctx context.Context, req Request) Outcome {
	if err := e.setAutoLogin(req.AccountName); err != nil {
		return Outcome{Error: err.Error()}
	}
	if err := e.markCurrent(req.SteamID); err != nil {
		return Outcome{Error: err.Error()}
	}
	if err := e.restart.Restart(ctx, req.AppID); err != nil {
		return Outcome{Error: err.Error()}
	}
	return Outcome{Success: true}
}

// setAutoLogin points the registry file at the target account so the login
// dialog pre-selects it. The file is optional scaffolding on some installs;
// a missing file or key is a warning, not a failure.
func (e *Engine) setAutoLogin(accountName string) error {
	path := e.layout.RegistryPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("auto-login file missing, skipping", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading auto-login file: %w", err)
	}

	content, n := vdf.ReplaceString(string(data), "AutoLoginUser", accountName)
	if n == 0 {
		e.logger.Warn("auto-login file has no AutoLoginUser key, leaving it untouched", "path", path)
		return nil
	}
	content, _ = vdf.ReplaceString(content, "RememberPassword", "1")

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing auto-login file: %w", err)
	}
	if err := e.chown.Chown(path); err != nil {
		e.logger.Warn("restoring auto-login file ownership", "path", path, "error", err)
	}
	return nil
}

// markCurrent resets every record's flags, then promotes the target record
// and stamps it with the current time. The promotion is scoped to the
// target's block; a global substitution would promote every record. A fresh
// install has no login state yet; a missing file is a warning, not a
// failure, and the restart still runs so the user can log in.
func (e *Engine) markCurrent(steamID string) error {
	path := e.layout.LoginUsersPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("login state file missing, skipping", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading login state: %w", err)
	}

	content, n := vdf.SetFlag(string(data), "mostrecent", false)
	if n > 1 {
		// The file was already inconsistent before we touched it.
		e.logger.Warn("multiple accounts were marked most recent", "count", n)
	}
	content, _ = vdf.SetFlag(content, "AllowAutoLogin", false)

	block, err := vdf.FindBlock(content, steamID)
	if err != nil {
		e.logger.Warn("login record not found, flags reset only", "steam_id", steamID, "error", err)
	} else {
		rec := content[block.Start:block.End]
		rec, _ = vdf.SetFlag(rec, "mostrecent", true)
		rec, _ = vdf.SetFlag(rec, "AllowAutoLogin", true)
		rec, stamped := vdf.ReplaceString(rec, "Timestamp", strconv.FormatInt(e.now().Unix(), 10))
		if stamped == 0 {
			e.logger.Debug("login record has no Timestamp field", "steam_id", steamID)
		}
		content = content[:block.Start] + rec + content[block.End:]
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing login state: %w", err)
	}
	if err := e.chown.Chown(path); err != nil {
		e.logger.Warn("restoring login state ownership", "path", path, "error", err)
	}
	return nil
}

func (e *Engine) recordEvent(req Request, out Outcome) {
	if e.events == nil {
		return
	}
	ev := storage.SwitchEvent{
		ID:          uuid.NewString(),
		SteamID:     req.SteamID,
		AccountName: req.AccountName,
		AppID:       req.AppID,
		Success:     out.Success,
		Error:       out.Error,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.events.SaveSwitchEvent(ev); err != nil {
		e.logger.Warn("recording switch event", "error", err)
	}
}
