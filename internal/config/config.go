// Package config loads and manages deckswitch configuration.
package config

// Config carries everything the daemon and CLI need to find the managed
// Steam installation and run the local API.
type Config struct {
	Server  ServerConfig
	Steam   SteamConfig
	Launch  LaunchConfig
	Restart RestartConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

// SteamConfig locates the Steam installation being managed. User and Home
// are autodetected at startup when left empty.
type SteamConfig struct {
	User   string
	Home   string
	Binary string
}

type LaunchConfig struct {
	PendingPath  string
	DelaySeconds int
	WatchLogin   bool
}

type RestartConfig struct {
	SettleSeconds int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4279,
		},
		Steam: SteamConfig{
			Binary: "steam",
		},
		Launch: LaunchConfig{
			PendingPath:  "/tmp/deckswitch_pending_launch.json",
			DelaySeconds: 3,
			WatchLogin:   true,
		},
		Restart: RestartConfig{
			SettleSeconds: 2,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend and the
// environment.
//
// On macOS the backend is UserDefaults (domain: com.deckswitch.app).
// On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/deckswitch/config.json.
//
// Environment variables (DECKSWITCH_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
