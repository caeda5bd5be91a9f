package main

import (
	"github.com/notehive/notehive"
	"github.com/spf13/cobra"
)

var (
	cfgDBPath    string
	cfgNimbusURL string
	cfgAPIKey    string
	cfgUserID    string
)

var rootCmd = &cobra.Command{
	Use:   "notehive",
	Short: "Notehive - offline-first notes CLI",
	Long: `Notehive is a CLI for an offline-first note store.

Notes and labels live in a local SQLite cache and synchronize with the
Nimbus cloud service whenever it is reachable. Mutations made offline are
queued and replayed on reconnect.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDBPath, "db-path", "", "Path to local note database (default: ~/.notehive/<user>/notes.db)")
	rootCmd.PersistentFlags().StringVar(&cfgNimbusURL, "nimbus-url", "", "URL of the Nimbus cloud service")
	rootCmd.PersistentFlags().StringVar(&cfgAPIKey, "api-key", "", "API key for Nimbus authentication")
	rootCmd.PersistentFlags().StringVar(&cfgUserID, "user", "", "Account user ID")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
}

func loadConfig() notehive.Config {
	cfg := notehive.DefaultConfig()
	env := notehive.ConfigFromEnv()

	cfg.LocalPath = env.LocalPath
	cfg.NimbusURL = env.NimbusURL
	cfg.APIKey = env.APIKey
	cfg.UserID = env.UserID
	cfg.Debug = env.Debug
	cfg.DebugLogPath = env.DebugLogPath

	// Flags override environment
	if cfgDBPath != "" {
		cfg.LocalPath = cfgDBPath
	}
	if cfgNimbusURL != "" {
		cfg.NimbusURL = cfgNimbusURL
	}
	if cfgAPIKey != "" {
		cfg.APIKey = cfgAPIKey
	}
	if cfgUserID != "" {
		cfg.UserID = cfgUserID
	}

	return cfg
}
