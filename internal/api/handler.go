// Package api exposes the account switcher over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/decktools/deckswitch/internal/launch"
	"github.com/decktools/deckswitch/internal/ownership"
	"github.com/decktools/deckswitch/internal/steam"
	"github.com/decktools/deckswitch/internal/storage"
	"github.com/decktools/deckswitch/internal/switcher"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Restarter abstracts the process controller for the API layer.
type Restarter interface {
	Restart(ctx context.Context, appID string) error
}

type Deps struct {
	Install   *steam.Install
	Owners    *ownership.Resolver
	Switcher  *switcher.Engine
	Restarter Restarter
	Launches  *launch.Coordinator
	Store     *storage.Store
	Token     string
	Version   string
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(g chi.Router) {
		g.Use(BearerAuth(deps.Token))

		g.Get("/users", handleListUsers(deps))
		g.Get("/users/current", handleCurrentUser(deps))
		g.Get("/games/{appID}/owner", handleGameOwner(deps))
		g.Get("/games/{appID}/local-owners", handleLocalOwners(deps))
		g.Post("/switch", handleSwitch(deps))
		g.Post("/restart", handleRestart(deps))
		g.Get("/pending-launch", handlePendingLaunch(deps))
		g.Post("/pending-launch/trigger", handleTriggerLaunch(deps))
		g.Get("/history", handleHistory(deps))
		g.Get("/settings", handleListSettings(deps))
		g.Get("/settings/{key}", handleGetSetting(deps))
		g.Put("/settings/{key}", handlePutSetting(deps))
		g.Delete("/settings/{key}", handleDeleteSetting(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"status":    "ok",
			"version":   deps.Version,
			"steamUser": deps.Install.Username(),
		})
	}
}

func handleListUsers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Install.Users())
	}
}

func handleCurrentUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Encodes to null when no account is logged in.
		writeJSON(w, deps.Install.CurrentUser())
	}
}

func handleGameOwner(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID := chi.URLParam(r, "appID")
		writeJSON(w, deps.Owners.GameOwner(appID))
	}
}

func handleLocalOwners(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appID := chi.URLParam(r, "appID")
		owners := deps.Owners.LocalOwners(r.Context(), appID)
		if owners == nil {
			owners = []string{}
		}
		writeJSON(w, owners)
	}
}

func handleSwitch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req switcher.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SteamID == "" || req.AccountName == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "steamId and accountName are required")
			return
		}

		// A failed switch is still a handled request; the outcome carries
		// the error.
		writeJSON(w, deps.Switcher.Switch(r.Context(), req))
	}
}

func handleRestart(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			AppID string `json:"appId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if err := deps.Restarter.Restart(r.Context(), req.AppID); err != nil {
			writeJSON(w, switcher.Outcome{Error: err.Error()})
			return
		}
		writeJSON(w, switcher.Outcome{Success: true})
	}
}

func handlePendingLaunch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, deps.Launches.Status())
	}
}

func handleTriggerLaunch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The redemption must outlive this request.
		deps.Launches.Trigger(context.WithoutCancel(r.Context()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "triggered"})
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		events, err := deps.Store.ListSwitchEvents(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list switch events: %v", err)
			return
		}
		if events == nil {
			events = []storage.SwitchEvent{}
		}
		writeJSON(w, events)
	}
}

func handleListSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := deps.Store.GetAllSettings()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list settings: %v", err)
			return
		}
		writeJSON(w, settings)
	}
}

func handleGetSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		value, err := deps.Store.GetSetting(key)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "setting not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get setting: %v", err)
			return
		}
		writeJSON(w, map[string]string{"key": key, "value": value})
	}
}

func handlePutSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if err := deps.Store.SetSetting(key, req.Value); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to set %q: %v", key, err)
			return
		}
		writeJSON(w, map[string]string{"status": "updated"})
	}
}

func handleDeleteSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		err := deps.Store.DeleteSetting(key)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "setting not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete setting: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "deleted"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
