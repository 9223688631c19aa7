package ownership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/decktools/deckswitch/internal/vdf"
	"golang.org/x/sync/errgroup"
)

// steam64Base converts a 32-bit account number (userdata directory name)
// to its 64-bit community identifier.
const steam64Base = 76561197960265728

const scanConcurrency = 4

// Info describes the accounts an install manifest attributes an app to.
type Info struct {
	LastOwner   string `json:"lastOwner,omitempty"`
	InstalledBy string `json:"installedBy,omitempty"`
}

// Layout is the subset of the Steam install layout the resolver reads.
type Layout interface {
	SteamAppsDir() string
	LibraryIndexPath() string
	UserdataDir() string
}

// Resolver derives app ownership from install manifests and per-account
// local config. All lookups are best-effort: absent data is not an error.
type Resolver struct {
	layout Layout
	logger *slog.Logger
}

// NewResolver creates a Resolver over the given install layout.
func NewResolver(layout Layout) *Resolver {
	return &Resolver{
		layout: layout,
		logger: slog.Default(),
	}
}

var (
	libraryPathRe = regexp.MustCompile(`"path"\s+"([^"]+)"`)
	lastOwnerRe   = regexp.MustCompile(`(?i)"LastOwner"\s+"(\d+)"`)
	installedByRe = regexp.MustCompile(`(?i)"InstalledBy"\s+"(\d+)"`)
	playTimeRe    = regexp.MustCompile(`(?i)"PlayTime"\s+"(\d+)"`)
)

// GameOwner resolves the install manifest for appID and reports the owning
// accounts recorded in it. Returns nil when no manifest exists in any
// library; a manifest without owner fields yields an empty, non-nil Info.
func (r *Resolver) GameOwner(appID string) *Info {
	manifest := r.findManifest(appID)
	if manifest == "" {
		return nil
	}
	data, err := os.ReadFile(manifest)
	if err != nil {
		r.logger.Error("reading app manifest", "path", manifest, "error", err)
		return nil
	}
	content := string(data)

	info := &Info{}
	if m := lastOwnerRe.FindStringSubmatch(content); m != nil {
		info.LastOwner = m[1]
	}
	if m := installedByRe.FindStringSubmatch(content); m != nil {
		info.InstalledBy = m[1]
	}
	if info.LastOwner == "" && info.InstalledBy == "" {
		r.logger.Warn("manifest carries no owner info", "app_id", appID, "path", manifest)
	}
	return info
}

// findManifest returns the path of the first appmanifest_<appID>.acf
// found, checking the primary steamapps directory first and then every
// library root declared in the index, in declaration order.
func (r *Resolver) findManifest(appID string) string {
	libs := []string{r.layout.SteamAppsDir()}
	if data, err := os.ReadFile(r.layout.LibraryIndexPath()); err == nil {
		for _, m := range libraryPathRe.FindAllStringSubmatch(string(data), -1) {
			p := filepath.Join(m[1], "steamapps")
			if !slices.Contains(libs, p) {
				libs = append(libs, p)
			}
		}
	}
	for _, lib := range libs {
		candidate := filepath.Join(lib, "appmanifest_"+appID+".acf")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// LocalOwners scans every per-account userdata directory for a positive
// PlayTime signal on appID and returns the matching accounts as 64-bit
// identifiers. Directories are scanned concurrently with bounded
// parallelism; a failure in one account is logged and never aborts the
// others.
func (r *Resolver) LocalOwners(ctx context.Context, appID string) []string {
	entries, err := os.ReadDir(r.layout.UserdataDir())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Error("reading userdata dir", "path", r.layout.UserdataDir(), "error", err)
		}
		return []string{}
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && isDigits(e.Name()) {
			dirs = append(dirs, e.Name())
		}
	}

	results := make([]string, len(dirs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)

	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}
			owner, err := r.scanAccount(dir, appID)
			if err != nil {
				// Isolated: one unreadable account must not hide the rest.
				r.logger.Warn("scanning account dir", "account", dir, "error", err)
				return nil
			}
			results[i] = owner
			return nil
		})
	}
	_ = g.Wait()

	owners := make([]string, 0, len(results))
	for _, o := range results {
		if o != "" {
			owners = append(owners, o)
		}
	}
	return owners
}

// scanAccount reports the 64-bit id for one userdata directory when its
// local config records positive play time for appID, or "" when it does
// not own the app.
func (r *Resolver) scanAccount(dir, appID string) (string, error) {
	path := filepath.Join(r.layout.UserdataDir(), dir, "config", "localconfig.vdf")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading local config: %w", err)
	}
	content := string(data)

	// The app block may nest arbitrarily deep structures, so the general
	// scanner is required here, unlike the flat login records.
	block, err := vdf.FindBlock(content, appID)
	if err != nil {
		if errors.Is(err, vdf.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("locating block %q: %w", appID, err)
	}

	m := playTimeRe.FindStringSubmatch(content[block.Start:block.End])
	if m == nil {
		return "", nil
	}
	minutes, err := strconv.Atoi(m[1])
	if err != nil || minutes <= 0 {
		return "", nil
	}

	steam3, err := strconv.ParseInt(dir, 10, 64)
	if err != nil {
		return "", fmt.Errorf("account dir %q is not numeric: %w", dir, err)
	}
	return strconv.FormatInt(steam3+steam64Base, 10), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
