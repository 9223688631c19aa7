package launch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultPendingPath is the well-known location of the pending-launch
// intent. It must survive a Steam restart but not a reboot, hence /tmp.
const DefaultPendingPath = "/tmp/deckswitch_pending_launch.json"

// Intent is the persisted deferred-launch request. CreatedAt is epoch
// seconds, fractional.
type Intent struct {
	AppID        string  `json:"appId"`
	DelaySeconds int     `json:"delaySeconds"`
	CreatedAt    float64 `json:"createdAt"`
}

// State describes the coordinator's current state for status queries.
type State struct {
	Pending bool    `json:"pending"`
	Intent  *Intent `json:"intent,omitempty"`
}

// GameLauncher starts an app under the Steam user's identity.
type GameLauncher interface {
	LaunchGame(ctx context.Context, appID string) error
}

// Coordinator owns the pending-launch intent file. An intent is written
// just before Steam is killed and redeemed after the next login completes.
// Redemption deletes the file before waiting or launching, so a crash or a
// duplicate trigger can never cause a double launch, and a failed launch
// is terminal: there is no retry.
type Coordinator struct {
	path     string
	delay    time.Duration
	launcher GameLauncher
	logger   *slog.Logger

	mu sync.Mutex // serializes consume (read + delete)
}

// NewCoordinator creates a Coordinator persisting intents at path.
// If path is empty, DefaultPendingPath is used. delay is the wait written
// into new intents; it gives Steam time to finish logging in before the
// launch command fires.
func NewCoordinator(path string, delay time.Duration, launcher GameLauncher) *Coordinator {
	if path == "" {
		path = DefaultPendingPath
	}
	if delay < 0 {
		delay = 0
	}
	return &Coordinator{
		path:     path,
		delay:    delay,
		launcher: launcher,
		logger:   slog.Default(),
	}
}

// Path returns the intent file location.
func (c *Coordinator) Path() string { return c.path }

// Save persists a deferred-launch intent for appID, moving the coordinator
// to the Pending state.
func (c *Coordinator) Save(appID string) error {
	intent := Intent{
		AppID:        appID,
		DelaySeconds: int(c.delay / time.Second),
		CreatedAt:    float64(time.Now().UnixMilli()) / 1000,
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encoding pending launch: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("writing pending launch file: %w", err)
	}
	c.logger.Info("saved pending launch", "app_id", appID, "path", c.path)
	return nil
}

// Status reports whether an intent is pending, without consuming it.
// A present but undecodable file still counts as pending; the next trigger
// will clean it up.
func (c *Coordinator) Status() State {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return State{}
	}
	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return State{Pending: true}
	}
	return State{Pending: true, Intent: &intent}
}

// Trigger kicks an asynchronous redemption attempt. It is idempotent:
// when no intent is pending the attempt is a no-op.
func (c *Coordinator) Trigger(ctx context.Context) {
	go c.Redeem(ctx)
}

// Redeem consumes the pending intent, waits its delay and launches the
// app. Reports whether an intent was consumed, regardless of the launch
// result. All failures are logged, never returned: once the file is gone
// the intent is spent.
func (c *Coordinator) Redeem(ctx context.Context) bool {
	intent, ok := c.consume()
	if !ok {
		return false
	}
	if intent.AppID == "" {
		c.logger.Warn("pending launch has no app id, dropped", "path", c.path)
		return true
	}

	if d := time.Duration(intent.DelaySeconds) * time.Second; d > 0 {
		select {
		case <-ctx.Done():
			c.logger.Info("pending launch abandoned on shutdown", "app_id", intent.AppID)
			return true
		case <-time.After(d):
		}
	}

	if err := c.launcher.LaunchGame(ctx, intent.AppID); err != nil {
		c.logger.Error("launching game", "app_id", intent.AppID, "error", err)
		return true
	}
	c.logger.Info("game launch triggered", "app_id", intent.AppID)
	return true
}

// consume reads and deletes the intent file. The delete happens before any
// parsing or launching: a corrupt file is removed without action, and a
// file that cannot be deleted is never acted on.
func (c *Coordinator) consume() (Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Error("reading pending launch file", "path", c.path, "error", err)
			c.remove()
		}
		return Intent{}, false
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Error("deleting pending launch file", "path", c.path, "error", err)
		return Intent{}, false
	}

	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		c.logger.Warn("pending launch file corrupt, dropped", "path", c.path, "error", err)
		return Intent{}, false
	}
	return intent, true
}

func (c *Coordinator) remove() {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Error("removing pending launch file", "path", c.path, "error", err)
	}
}
