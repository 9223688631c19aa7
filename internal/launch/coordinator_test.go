package launch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type mockLauncher struct {
	launchFn func(ctx context.Context, appID string) error

	mu    sync.Mutex
	calls []string
}

func (m *mockLauncher) LaunchGame(ctx context.Context, appID string) error {
	m.mu.Lock()
	m.calls = append(m.calls, appID)
	m.mu.Unlock()
	if m.launchFn != nil {
		return m.launchFn(ctx, appID)
	}
	return nil
}

func (m *mockLauncher) launched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func newTestCoordinator(t *testing.T, delay time.Duration) (*Coordinator, *mockLauncher) {
	t.Helper()
	launcher := &mockLauncher{}
	path := filepath.Join(t.TempDir(), "pending_launch.json")
	return NewCoordinator(path, delay, launcher), launcher
}

func writeIntent(t *testing.T, c *Coordinator, raw string) {
	t.Helper()
	if err := os.WriteFile(c.Path(), []byte(raw), 0o644); err != nil {
		t.Fatalf("writing intent file: %v", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestSave_WritesIntent(t *testing.T) {
	c, _ := newTestCoordinator(t, 3*time.Second)

	if err := c.Save("730"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(c.Path())
	if err != nil {
		t.Fatalf("reading intent file: %v", err)
	}
	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		t.Fatalf("decoding intent: %v", err)
	}
	if intent.AppID != "730" {
		t.Errorf("AppID = %q, want %q", intent.AppID, "730")
	}
	if intent.DelaySeconds != 3 {
		t.Errorf("DelaySeconds = %d, want 3", intent.DelaySeconds)
	}
	if intent.CreatedAt <= 0 {
		t.Errorf("CreatedAt = %v, want positive epoch seconds", intent.CreatedAt)
	}
}

// TestRedeem_RoundTrip exercises the full save-trigger-launch path: exactly
// one launch fires and the file is gone afterwards.
func TestRedeem_RoundTrip(t *testing.T) {
	c, launcher := newTestCoordinator(t, 0)

	if err := c.Save("123"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !c.Redeem(context.Background()) {
		t.Fatal("Redeem() = false, want consumed intent")
	}

	if got := launcher.launched(); len(got) != 1 || got[0] != "123" {
		t.Errorf("launched = %v, want exactly [123]", got)
	}
	if fileExists(c.Path()) {
		t.Error("intent file still exists after redemption")
	}
}

func TestRedeem_Idle(t *testing.T) {
	c, launcher := newTestCoordinator(t, 0)

	if c.Redeem(context.Background()) {
		t.Error("Redeem() = true with no pending file")
	}
	if got := launcher.launched(); len(got) != 0 {
		t.Errorf("launched = %v, want none", got)
	}
}

// TestRedeem_LaunchFailureIsTerminal verifies a failed launch neither
// restores the file nor retries.
func TestRedeem_LaunchFailureIsTerminal(t *testing.T) {
	c, launcher := newTestCoordinator(t, 0)
	launcher.launchFn = func(ctx context.Context, appID string) error {
		return errors.New("sudo: command timed out")
	}

	if err := c.Save("123"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !c.Redeem(context.Background()) {
		t.Fatal("Redeem() = false, want consumed intent")
	}
	if fileExists(c.Path()) {
		t.Error("intent file must be deleted even when the launch fails")
	}

	// A second trigger finds nothing to do.
	if c.Redeem(context.Background()) {
		t.Error("second Redeem() = true, want idle")
	}
	if got := launcher.launched(); len(got) != 1 {
		t.Errorf("launch attempts = %d, want exactly 1 (no retry)", len(got))
	}
}

func TestRedeem_CorruptFileDeletedWithoutLaunch(t *testing.T) {
	c, launcher := newTestCoordinator(t, 0)
	writeIntent(t, c, `{not json at all`)

	if c.Redeem(context.Background()) {
		t.Error("Redeem() = true for corrupt intent, want false")
	}
	if fileExists(c.Path()) {
		t.Error("corrupt intent file must be deleted")
	}
	if got := launcher.launched(); len(got) != 0 {
		t.Errorf("launched = %v, want none", got)
	}
}

func TestRedeem_MissingAppIDAborts(t *testing.T) {
	c, launcher := newTestCoordinator(t, 0)
	writeIntent(t, c, `{"delaySeconds":0,"createdAt":1700000000}`)

	if !c.Redeem(context.Background()) {
		t.Error("Redeem() = false, want consumed (file was valid JSON)")
	}
	if fileExists(c.Path()) {
		t.Error("intent file must be deleted")
	}
	if got := launcher.launched(); len(got) != 0 {
		t.Errorf("launched = %v, want none for missing app id", got)
	}
}

// TestRedeem_DuplicateTriggers runs several concurrent redemptions against
// one intent; the delete-before-launch step must let exactly one through.
func TestRedeem_DuplicateTriggers(t *testing.T) {
	c, launcher := newTestCoordinator(t, 0)
	if err := c.Save("123"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Redeem(context.Background())
		}()
	}
	wg.Wait()

	if got := launcher.launched(); len(got) != 1 {
		t.Errorf("launch attempts = %d, want exactly 1", len(got))
	}
}

func TestRedeem_CancelledContextSkipsLaunch(t *testing.T) {
	c, launcher := newTestCoordinator(t, time.Second)
	if err := c.Save("123"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if !c.Redeem(ctx) {
		t.Fatal("Redeem() = false, want consumed intent")
	}
	if got := launcher.launched(); len(got) != 0 {
		t.Errorf("launched = %v, want none after cancellation", got)
	}
	if fileExists(c.Path()) {
		t.Error("intent file must be gone even when the wait is cancelled")
	}
}

func TestStatus(t *testing.T) {
	c, _ := newTestCoordinator(t, 0)

	if st := c.Status(); st.Pending {
		t.Error("Status().Pending = true with no file")
	}

	writeIntent(t, c, `{"appId":"440","delaySeconds":2,"createdAt":1700000000}`)
	st := c.Status()
	if !st.Pending {
		t.Fatal("Status().Pending = false, want true")
	}
	if st.Intent == nil || st.Intent.AppID != "440" {
		t.Errorf("Status().Intent = %+v, want appId 440", st.Intent)
	}
	// Status is a peek, not a consume.
	if !fileExists(c.Path()) {
		t.Error("Status() must not delete the intent file")
	}

	writeIntent(t, c, `garbage`)
	st = c.Status()
	if !st.Pending {
		t.Error("Status().Pending = false for undecodable file, want true")
	}
	if st.Intent != nil {
		t.Errorf("Status().Intent = %+v, want nil for undecodable file", st.Intent)
	}
}
