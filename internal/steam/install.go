package steam

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

// Install describes the on-disk layout of a Steam installation owned by a
// single OS user. All accessors derive from the user's home directory:
// the main tree lives under ~/.local/share/Steam and the registry under
// ~/.steam. Every read goes straight to disk; nothing is cached, so each
// call observes the latest state even while Steam itself rewrites files.
type Install struct {
	user   string
	home   string
	logger *slog.Logger
}

// NewInstall returns an Install for the given OS user. If home is empty it
// defaults to /home/<user>.
func NewInstall(user, home string) *Install {
	if home == "" {
		home = filepath.Join("/home", user)
	}
	return &Install{
		user:   user,
		home:   home,
		logger: slog.Default(),
	}
}

// Username returns the OS user the installation belongs to.
func (s *Install) Username() string { return s.user }

// Root returns the main Steam data tree.
func (s *Install) Root() string { return filepath.Join(s.home, ".local", "share", "Steam") }

// ConfigDir returns the directory holding loginusers.vdf and
// libraryfolders.vdf.
func (s *Install) ConfigDir() string { return filepath.Join(s.Root(), "config") }

// LoginUsersPath returns the login-state file.
func (s *Install) LoginUsersPath() string { return filepath.Join(s.ConfigDir(), "loginusers.vdf") }

// RegistryPath returns the auto-login registry file. It lives under
// ~/.steam, not under the data root.
func (s *Install) RegistryPath() string { return filepath.Join(s.home, ".steam", "registry.vdf") }

// UserdataDir returns the per-account data tree.
func (s *Install) UserdataDir() string { return filepath.Join(s.Root(), "userdata") }

// LibraryIndexPath returns the library-folders index.
func (s *Install) LibraryIndexPath() string {
	return filepath.Join(s.ConfigDir(), "libraryfolders.vdf")
}

// SteamAppsDir returns the primary app-manifest directory.
func (s *Install) SteamAppsDir() string { return filepath.Join(s.Root(), "steamapps") }

// Users reads loginusers.vdf and returns all login records, newest first.
// A missing or unreadable file degrades to an empty list with a log entry.
func (s *Install) Users() []User {
	data, err := os.ReadFile(s.LoginUsersPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("loginusers.vdf not found", "path", s.LoginUsersPath())
		} else {
			s.logger.Error("reading loginusers.vdf", "path", s.LoginUsersPath(), "error", err)
		}
		return []User{}
	}
	return ExtractUsers(string(data))
}

// CurrentUser returns the record marked most recent, falling back to the
// newest record by timestamp, or nil when no users exist.
func (s *Install) CurrentUser() *User {
	users := s.Users()
	for i := range users {
		if users[i].MostRecent {
			return &users[i]
		}
	}
	if len(users) > 0 {
		return &users[0]
	}
	return nil
}
