package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/decktools/deckswitch/internal/api"
	"github.com/decktools/deckswitch/internal/config"
	"github.com/decktools/deckswitch/internal/launch"
	"github.com/decktools/deckswitch/internal/ownership"
	"github.com/decktools/deckswitch/internal/proc"
	"github.com/decktools/deckswitch/internal/steam"
	"github.com/decktools/deckswitch/internal/storage"
	"github.com/decktools/deckswitch/internal/switcher"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the deckswitch server",
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the deckswitch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		foreground, _ := cmd.Flags().GetBool("foreground")
		withMCP, _ := cmd.Flags().GetBool("mcp")
		if withMCP {
			// MCP speaks stdio, so the process must stay attached.
			foreground = true
		}
		if !foreground {
			return spawnDaemon()
		}
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running deckswitch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show deckswitch server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("foreground", false, "run in the foreground instead of detaching")
	startCmd.Flags().Bool("mcp", false, "serve MCP over stdio (implies --foreground)")
	serverCmd.AddCommand(startCmd)
	serverCmd.AddCommand(stopCmd)
	serverCmd.AddCommand(statusCmd)
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "deckswitch.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	pid, err := proc.StartDetached(exe, "server", "start", "--foreground")
	if err != nil {
		return fmt.Errorf("spawning server: %w", err)
	}
	printSuccess("deckswitch server started (PID %d)", pid)
	return nil
}

// saverFunc adapts a function to proc.PendingSaver.
type saverFunc func(appID string) error

func (f saverFunc) Save(appID string) error { return f(appID) }

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "deckswitch version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Ensure the API token exists in the platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if a server is already running via the health
	// endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("deckswitch is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("deckswitch is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Locate the Steam installation being managed.
	steamUser := cfg.Steam.User
	if steamUser == "" {
		steamUser = steam.DetectUser()
	}
	install := steam.NewInstall(steamUser, cfg.Steam.Home)
	slog.Info("managing steam installation", "user", steamUser, "root", install.Root())

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// The controller persists intents through the coordinator and the
	// coordinator launches games through the controller. The saverFunc
	// indirection breaks the construction cycle; coord is assigned before
	// any request can reach Save.
	var coord *launch.Coordinator
	saver := saverFunc(func(appID string) error { return coord.Save(appID) })
	ctrl := proc.NewController(steamUser, cfg.Steam.Binary, time.Duration(cfg.Restart.SettleSeconds)*time.Second, saver)
	coord = launch.NewCoordinator(cfg.Launch.PendingPath, time.Duration(cfg.Launch.DelaySeconds)*time.Second, ctrl)

	deps := api.Deps{
		Install:   install,
		Owners:    ownership.NewResolver(install),
		Switcher:  switcher.NewEngine(install, ctrl, ctrl, store),
		Restarter: ctrl,
		Launches:  coord,
		Store:     store,
		Token:     apiToken,
		Version:   version,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// Redeem any intent left over from a restart this process did not
	// witness.
	coord.Trigger(ctx)

	// Watch for login completion so pending launches fire without a manual
	// trigger.
	if cfg.Launch.WatchLogin {
		watcher := launch.NewWatcher(install.ConfigDir(), "loginusers.vdf", coord)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Warn("login watcher unavailable, relying on manual triggers", "error", err)
			}
		}()
	}

	// Build and start MCP server (stdio transport in a goroutine).
	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Deps: deps})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "deckswitch listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("deckswitch is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop deckswitch (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to deckswitch (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		if pid, pidErr := readPIDFile(pidFilePath(cfg.Storage.DataDir)); pidErr == nil {
			printStatus("Server", "stopped (stale PID file, PID %d)", pid)
		} else {
			printStatus("Server", "stopped")
		}
	} else {
		var health struct {
			Status    string `json:"status"`
			Version   string `json:"version"`
			SteamUser string `json:"steamUser"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&health)
		resp.Body.Close()
		switch {
		case resp.StatusCode != 200:
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		case decodeErr != nil:
			printStatus("Server", "running on port %d", cfg.Server.Port)
		default:
			running = true
			printStatus("Server", "running on port %d (version %s)", cfg.Server.Port, health.Version)
			printStatus("Steam user", "%s", health.SteamUser)
		}
	}

	// Show login and pending-launch state if the server is running.
	if running {
		if apiToken, tokenErr := config.GetAPIToken(config.NewKeychain()); tokenErr == nil {
			if userResp, err := apiGet(client, serverURL+"/users/current", apiToken); err == nil {
				var current *struct {
					AccountName string `json:"accountName"`
					PersonaName string `json:"personaName"`
				}
				if json.NewDecoder(userResp.Body).Decode(&current) == nil {
					if current != nil {
						printStatus("Logged in", "%s (%s)", current.AccountName, current.PersonaName)
					} else {
						printStatus("Logged in", "nobody")
					}
				}
				userResp.Body.Close()
			}
			if launchResp, err := apiGet(client, serverURL+"/pending-launch", apiToken); err == nil {
				var state struct {
					Pending bool `json:"pending"`
					Intent  *struct {
						AppID string `json:"appId"`
					} `json:"intent"`
				}
				if json.NewDecoder(launchResp.Body).Decode(&state) == nil {
					switch {
					case state.Pending && state.Intent != nil:
						printStatus("Pending launch", "app %s", state.Intent.AppID)
					case state.Pending:
						printStatus("Pending launch", "yes")
					default:
						printStatus("Pending launch", "none")
					}
				}
				launchResp.Body.Close()
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
