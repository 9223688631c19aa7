package storage

import (
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies the switch_events indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_switch_events_created", "idx_switch_events_steam_id"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestSaveAndGetSwitchEvent saves an event and retrieves it by ID.
func TestSaveAndGetSwitchEvent(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	want := SwitchEvent{
		ID:          "ev-001",
		SteamID:     "76561198011111111",
		AccountName: "alice",
		AppID:       "730",
		Success:     true,
		CreatedAt:   now,
	}

	if err := s.SaveSwitchEvent(want); err != nil {
		t.Fatalf("SaveSwitchEvent: %v", err)
	}

	got, err := s.GetSwitchEvent("ev-001")
	if err != nil {
		t.Fatalf("GetSwitchEvent: %v", err)
	}

	if got.SteamID != want.SteamID {
		t.Errorf("SteamID = %q, want %q", got.SteamID, want.SteamID)
	}
	if got.AccountName != want.AccountName {
		t.Errorf("AccountName = %q, want %q", got.AccountName, want.AccountName)
	}
	if got.AppID != want.AppID {
		t.Errorf("AppID = %q, want %q", got.AppID, want.AppID)
	}
	if !got.Success {
		t.Error("Success = false, want true")
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
}

// TestGetSwitchEventNotFound verifies that a missing ID returns ErrNotFound.
func TestGetSwitchEventNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetSwitchEvent("does-not-exist")
	if err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// TestSaveSwitchEvent_Failure round-trips a failed event with its error text.
func TestSaveSwitchEvent_Failure(t *testing.T) {
	s := openTestStore(t)

	ev := SwitchEvent{
		ID:        "ev-fail",
		SteamID:   "76561198022222222",
		Success:   false,
		Error:     "writing loginusers.vdf: permission denied",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.SaveSwitchEvent(ev); err != nil {
		t.Fatalf("SaveSwitchEvent: %v", err)
	}

	got, err := s.GetSwitchEvent("ev-fail")
	if err != nil {
		t.Fatalf("GetSwitchEvent: %v", err)
	}
	if got.Success {
		t.Error("Success = true, want false")
	}
	if got.Error != ev.Error {
		t.Errorf("Error = %q, want %q", got.Error, ev.Error)
	}
}

// TestListSwitchEvents saves 10 events and verifies limit, offset and
// descending order.
func TestListSwitchEvents(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for j := 0; j < 10; j++ {
		ev := SwitchEvent{
			ID:          fmt.Sprintf("ev-%02d", j),
			SteamID:     "76561198011111111",
			AccountName: "alice",
			Success:     true,
			CreatedAt:   base.Add(time.Duration(j) * time.Hour),
		}
		if err := s.SaveSwitchEvent(ev); err != nil {
			t.Fatalf("SaveSwitchEvent %d: %v", j, err)
		}
	}

	got, err := s.ListSwitchEvents(5, 0)
	if err != nil {
		t.Fatalf("ListSwitchEvents: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d events, want 5", len(got))
	}
	for k := 1; k < len(got); k++ {
		if got[k].CreatedAt.After(got[k-1].CreatedAt) {
			t.Errorf("not in descending order: [%d]=%v > [%d]=%v", k, got[k].CreatedAt, k-1, got[k-1].CreatedAt)
		}
	}
	if got[0].ID != "ev-09" {
		t.Errorf("first result ID = %q, want %q", got[0].ID, "ev-09")
	}

	page2, err := s.ListSwitchEvents(5, 5)
	if err != nil {
		t.Fatalf("ListSwitchEvents offset: %v", err)
	}
	if len(page2) != 5 {
		t.Fatalf("got %d events on page 2, want 5", len(page2))
	}
	if page2[0].ID != "ev-04" {
		t.Errorf("page 2 first ID = %q, want %q", page2[0].ID, "ev-04")
	}
}

// TestSettingRoundTrip sets a key and gets it back, then overwrites it.
func TestSettingRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetSetting("confirm_switch", "true"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	val, err := s.GetSetting("confirm_switch")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if val != "true" {
		t.Errorf("value = %q, want %q", val, "true")
	}

	// Overwrite and verify upsert works.
	if err := s.SetSetting("confirm_switch", "false"); err != nil {
		t.Fatalf("SetSetting (overwrite): %v", err)
	}
	val, err = s.GetSetting("confirm_switch")
	if err != nil {
		t.Fatalf("GetSetting (overwrite): %v", err)
	}
	if val != "false" {
		t.Errorf("value = %q, want %q", val, "false")
	}
}

func TestGetSettingNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetSetting("missing")
	if err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// TestGetAllSettings sets several keys and verifies all come back.
func TestGetAllSettings(t *testing.T) {
	s := openTestStore(t)

	keys := map[string]string{
		"confirm_switch":  "true",
		"show_avatars":    "false",
		"last_seen_notes": "1.2.0",
	}
	for k, v := range keys {
		if err := s.SetSetting(k, v); err != nil {
			t.Fatalf("SetSetting(%q): %v", k, err)
		}
	}

	got, err := s.GetAllSettings()
	if err != nil {
		t.Fatalf("GetAllSettings: %v", err)
	}
	if len(got) != len(keys) {
		t.Fatalf("got %d keys, want %d", len(got), len(keys))
	}
	for k, want := range keys {
		if got[k] != want {
			t.Errorf("key %q = %q, want %q", k, got[k], want)
		}
	}
}

func TestDeleteSetting(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetSetting("temp", "1"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.DeleteSetting("temp"); err != nil {
		t.Fatalf("DeleteSetting: %v", err)
	}
	if _, err := s.GetSetting("temp"); err != ErrNotFound {
		t.Errorf("after delete, error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSetting("temp"); err != ErrNotFound {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}
