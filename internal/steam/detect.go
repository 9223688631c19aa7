package steam

import (
	"os"
	"path/filepath"
)

// DetectUser returns the OS user that owns the local Steam installation:
// the owner of /home/deck/.steam if present (the Steam Deck layout), then
// the owner of ~/.steam, then "deck" as a last resort. Configuration may
// override the result; this detection runs only when no override is set.
func DetectUser() string {
	return detectUser(os.UserHomeDir, pathOwner)
}

func detectUser(home func() (string, error), owner func(string) (string, error)) string {
	candidates := []string{"/home/deck/.steam"}
	if h, err := home(); err == nil {
		candidates = append(candidates, filepath.Join(h, ".steam"))
	}
	for _, p := range candidates {
		if name, err := owner(p); err == nil && name != "" {
			return name
		}
	}
	return "deck"
}
