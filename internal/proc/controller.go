// Package proc stops, relaunches, and commands the Steam client on behalf
// of the desktop user.
package proc

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBinary = "steam"
	defaultSettle = 2 * time.Second

	// launchTimeout bounds the rungameid invocation; the command normally
	// hands off to the running client within a second or two.
	launchTimeout = 10 * time.Second
)

// PendingSaver persists a deferred game launch so it survives the restart.
type PendingSaver interface {
	Save(appID string) error
}

type runFunc func(ctx context.Context, name string, args ...string) error

type startFunc func(name string, args ...string) error

// Controller kills and respawns the Steam client and fires game launches.
// The client is always restarted detached so it outlives this process.
type Controller struct {
	user    string
	binary  string
	settle  time.Duration
	pending PendingSaver
	logger  *slog.Logger

	run   runFunc
	start startFunc
}

// NewController creates a Controller acting for the given desktop user.
// Empty binary defaults to "steam"; non-positive settle defaults to 2s.
func NewController(user, binary string, settle time.Duration, pending PendingSaver) *Controller {
	if binary == "" {
		binary = defaultBinary
	}
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Controller{
		user:    user,
		binary:  binary,
		settle:  settle,
		pending: pending,
		logger:  slog.Default(),
		run:     runCommand,
		start:   startDetached,
	}
}

// Restart kills the Steam client and helper, waits for the processes to
// release their files, and respawns the client. When appID is non-empty the
// launch intent is persisted first, so a failure to persist aborts the
// restart before anything is killed.
func (c *Controller) Restart(ctx context.Context, appID string) error {
	if appID != "" {
		if err := c.pending.Save(appID); err != nil {
			return fmt.Errorf("persisting launch intent: %w", err)
		}
		c.logger.Info("deferred game launch persisted", "app_id", appID)
	}

	c.logger.Info("stopping steam")
	for _, proc := range []string{"steam", "steamwebhelper"} {
		if err := c.run(ctx, "killall", "-9", proc); err != nil {
			// Nothing to kill is the common case on a cold start.
			c.logger.Debug("killall", "process", proc, "error", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.settle):
	}

	c.logger.Info("starting steam", "binary", c.binary)
	if err := c.start(c.binary); err != nil {
		return fmt.Errorf("starting steam: %w", err)
	}
	return nil
}

// LaunchGame asks the running Steam client to start a game. The command is
// run as the desktop user since the client rejects URLs from other sessions.
func (c *Controller) LaunchGame(ctx context.Context, appID string) error {
	ctx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()

	url := "steam://rungameid/" + appID
	c.logger.Info("launching game", "app_id", appID, "user", c.user)
	if err := c.run(ctx, "sudo", "-u", c.user, c.binary, url); err != nil {
		return fmt.Errorf("launching app %s: %w", appID, err)
	}
	return nil
}

// Chown hands a file back to the desktop user after a root-owned write.
func (c *Controller) Chown(path string) error {
	u, err := user.Lookup(c.user)
	if err != nil {
		return fmt.Errorf("looking up user %s: %w", c.user, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("parsing uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("parsing gid %q: %w", u.Gid, err)
	}
	return os.Chown(path, uid, gid)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// StartDetached spawns a binary in its own session with no inherited
// stdio, then reaps it in the background to avoid a zombie. It returns
// the PID of the spawned process.
func StartDetached(name string, args ...string) (int, error) {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = detachSysProcAttr()
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

func startDetached(name string, args ...string) error {
	_, err := StartDetached(name, args...)
	return err
}
