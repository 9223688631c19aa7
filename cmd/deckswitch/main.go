package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "deckswitch",
	Short: "Switch Steam accounts and launch games across the restart",
	Long: `deckswitch manages the Steam accounts known to this device: it switches
the autologin account, restarts the Steam client, and launches a game
once the new account has finished logging in.

Most commands talk to the deckswitch server over its local HTTP API;
start it with "deckswitch server start".`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(currentCmd)
	rootCmd.AddCommand(switchCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(ownerCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
