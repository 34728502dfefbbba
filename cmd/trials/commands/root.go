// Package commands provides the CLI commands for the trials client.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bharatr21/clinical-trials-agent/internal/client"
	"github.com/bharatr21/clinical-trials-agent/internal/config"
	"github.com/bharatr21/clinical-trials-agent/internal/identity"
	"github.com/bharatr21/clinical-trials-agent/internal/logging"
	"github.com/bharatr21/clinical-trials-agent/internal/storage"
	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	serverURL string
	apiKey    string
)

var rootCmd = &cobra.Command{
	Use:   "trials",
	Short: "trials - conversational clinical trials explorer",
	Long: `trials asks questions about clinical trial data in natural language
and streams the agent's answer as it is produced, including the SQL the
agent ran to find it.

Run 'trials ask "how many phase 3 diabetes trials are recruiting?"' to
get started, or 'trials mock' to run a local stand-in server.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(logLevel)
		cfg.Pretty = true
		if !printLogs {
			cfg.Output = io.Discard
		}
		logging.Init(cfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Service base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "OpenAI API key to forward")

	rootCmd.SetVersionTemplate(fmt.Sprintf("trials %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(mockCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration and applies command-line overrides.
func loadConfig() (*types.Config, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// identityProvider builds the device identity provider backed by local
// storage.
func identityProvider(cfg *types.Config) *identity.Provider {
	store := storage.New(config.DataDir(cfg))
	return identity.NewProvider(identity.NewFileStore(store))
}

// buildClient constructs the service client from configuration.
func buildClient(cfg *types.Config) (*client.Client, error) {
	opts := []client.Option{}
	if cfg.APIKey != "" {
		opts = append(opts, client.WithAPIKey(cfg.APIKey))
	}
	return client.New(cfg.ServerURL, identityProvider(cfg), opts...)
}
