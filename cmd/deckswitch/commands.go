package main

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/decktools/deckswitch/internal/config"
)

// userRecord mirrors the wire shape of one known account.
type userRecord struct {
	SteamID     string `json:"steamId"`
	AccountName string `json:"accountName"`
	PersonaName string `json:"personaName"`
	MostRecent  bool   `json:"mostRecent"`
	Timestamp   int64  `json:"timestamp"`
}

func fetchUsers(ctx context.Context, client *apiClient) ([]userRecord, error) {
	resp, err := client.get(ctx, "/users")
	if err != nil {
		return nil, err
	}
	var users []userRecord
	if err := decodeJSON(resp, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// resolveUser matches ref against the known accounts, by exact SteamID or
// case-insensitive account name.
func resolveUser(ctx context.Context, client *apiClient, ref string) (userRecord, error) {
	users, err := fetchUsers(ctx, client)
	if err != nil {
		return userRecord{}, err
	}
	if len(users) == 0 {
		return userRecord{}, fmt.Errorf("no accounts known to this device")
	}
	for _, u := range users {
		if u.SteamID == ref || strings.EqualFold(u.AccountName, ref) {
			return u, nil
		}
	}
	return userRecord{}, fmt.Errorf("no account matching %q; run 'deckswitch users' to list accounts", ref)
}

// --- users ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List Steam accounts known to this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		users, err := fetchUsers(cmd.Context(), client)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			fmt.Println("No accounts found.")
			return nil
		}

		for _, u := range users {
			marker := " "
			if u.MostRecent {
				marker = "*"
			}
			fmt.Printf("%s %s  %s  %s\n",
				marker,
				colorize(colorBold, u.AccountName),
				u.SteamID,
				u.PersonaName,
			)
		}
		return nil
	},
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the currently logged-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/users/current")
		if err != nil {
			return err
		}

		var user *userRecord
		if err := decodeJSON(resp, &user); err != nil {
			return err
		}
		if user == nil {
			fmt.Println("No account is logged in.")
			return nil
		}
		fmt.Printf("%s  %s  %s\n", colorize(colorBold, user.AccountName), user.SteamID, user.PersonaName)
		return nil
	},
}

// --- switch ---

var switchCmd = &cobra.Command{
	Use:   "switch <account|steamID> [accountName]",
	Short: "Switch the logged-in Steam account",
	Long: `Switch the logged-in Steam account. Steam is restarted as part of the
switch; with --app the game is launched once the new account has
finished logging in.

With one argument the account is resolved against the accounts known to
this device, by account name or 64-bit SteamID. With two arguments the
SteamID and account name are used as given.

Examples:
  deckswitch switch gamer
  deckswitch switch 76561198000000001 gamer --app 1091500`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		appID, _ := cmd.Flags().GetString("app")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var steamID, accountName string
		if len(args) == 2 {
			steamID, accountName = args[0], args[1]
		} else {
			user, err := resolveUser(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}
			steamID, accountName = user.SteamID, user.AccountName
		}

		req := map[string]string{
			"steamId":     steamID,
			"accountName": accountName,
		}
		if appID != "" {
			req["appId"] = appID
		}

		printStep("Switching to %s...", accountName)
		resp, err := client.post(cmd.Context(), "/switch", req)
		if err != nil {
			return err
		}

		var outcome struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}
		if err := decodeJSON(resp, &outcome); err != nil {
			return err
		}
		if !outcome.Success {
			printError("Switch failed: %s", outcome.Error)
			return fmt.Errorf("switch failed: %s", outcome.Error)
		}

		printSuccess("Switched to %s; Steam is restarting", accountName)
		if appID != "" {
			printStep("App %s will launch once login completes", appID)
		}
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the Steam client",
	RunE: func(cmd *cobra.Command, args []string) error {
		appID, _ := cmd.Flags().GetString("app")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]string{}
		if appID != "" {
			req["appId"] = appID
		}

		resp, err := client.post(cmd.Context(), "/restart", req)
		if err != nil {
			return err
		}

		var outcome struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}
		if err := decodeJSON(resp, &outcome); err != nil {
			return err
		}
		if !outcome.Success {
			printError("Restart failed: %s", outcome.Error)
			return fmt.Errorf("restart failed: %s", outcome.Error)
		}

		printSuccess("Steam is restarting")
		if appID != "" {
			printStep("App %s will launch once login completes", appID)
		}
		return nil
	},
}

func init() {
	switchCmd.Flags().String("app", "", "app ID to launch after the switch completes")
	restartCmd.Flags().String("app", "", "app ID to launch after the restart completes")
}

// --- games ---

var ownerCmd = &cobra.Command{
	Use:   "owner <appID>",
	Short: "Show which accounts own an installed app",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appID := args[0]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/games/"+url.PathEscape(appID)+"/owner")
		if err != nil {
			return err
		}
		// null means no install manifest; an empty object means a manifest
		// without owner fields.
		var info *struct {
			LastOwner   string `json:"lastOwner"`
			InstalledBy string `json:"installedBy"`
		}
		if err := decodeJSON(resp, &info); err != nil {
			return err
		}

		if info == nil {
			fmt.Printf("No install manifest found for app %s.\n", appID)
		} else {
			printStatus("Last owner", "%s", orUnknown(info.LastOwner))
			printStatus("Installed by", "%s", orUnknown(info.InstalledBy))
		}

		localResp, err := client.get(cmd.Context(), "/games/"+url.PathEscape(appID)+"/local-owners")
		if err != nil {
			return err
		}
		var owners []string
		if err := decodeJSON(localResp, &owners); err != nil {
			return err
		}
		if len(owners) == 0 {
			printStatus("Local playtime", "none")
			return nil
		}
		printStatus("Local playtime", "%s", strings.Join(owners, ", "))
		return nil
	},
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// --- pending launch ---

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Redeem a pending game launch now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/pending-launch/trigger", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Launch trigger queued")
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show the pending game launch, if any",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/pending-launch")
		if err != nil {
			return err
		}
		var state struct {
			Pending bool `json:"pending"`
			Intent  *struct {
				AppID        string  `json:"appId"`
				DelaySeconds int     `json:"delaySeconds"`
				CreatedAt    float64 `json:"createdAt"`
			} `json:"intent"`
		}
		if err := decodeJSON(resp, &state); err != nil {
			return err
		}

		if !state.Pending {
			fmt.Println("No launch is pending.")
			return nil
		}
		if state.Intent == nil {
			fmt.Println("A launch is pending but its intent could not be read.")
			return nil
		}
		created := time.Unix(int64(state.Intent.CreatedAt), 0)
		fmt.Printf("App %s pending since %s (delay %ds)\n",
			colorize(colorBold, state.Intent.AppID),
			created.Format(time.RFC3339),
			state.Intent.DelaySeconds,
		)
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent account switches",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/history?limit=%d&offset=%d", limit, offset)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var events []struct {
			ID          string `json:"id"`
			SteamID     string `json:"steamId"`
			AccountName string `json:"accountName"`
			AppID       string `json:"appId"`
			Success     bool   `json:"success"`
			Error       string `json:"error"`
			CreatedAt   string `json:"createdAt"`
		}
		if err := decodeJSON(resp, &events); err != nil {
			return err
		}

		if len(events) == 0 {
			fmt.Println("No switches recorded.")
			return nil
		}

		for _, ev := range events {
			status := colorize(colorGreen, "ok    ")
			if !ev.Success {
				status = colorize(colorRed, "failed")
			}
			line := fmt.Sprintf("%s  %s  %s", colorize(colorDim, ev.CreatedAt), status, ev.AccountName)
			if ev.AppID != "" {
				line += "  app=" + ev.AppID
			}
			if ev.Error != "" {
				line += "  (" + ev.Error + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of events to list")
	historyCmd.Flags().Int("offset", 0, "number of events to skip")
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage server-side settings",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings")
		if err != nil {
			return err
		}
		var settings map[string]string
		if err := decodeJSON(resp, &settings); err != nil {
			return err
		}
		if len(settings) == 0 {
			fmt.Println("No settings stored.")
			return nil
		}

		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k), settings[k])
		}
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show a single setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var setting struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := decodeJSON(resp, &setting); err != nil {
			return err
		}

		fmt.Println(setting.Value)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/settings/"+url.PathEscape(key), map[string]string{"value": value})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var settingsDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/settings/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsDeleteCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
