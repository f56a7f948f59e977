package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/entrepeneur4lyf/paycopilot/internal/config"
)

// version is set at build time with -ldflags "-X .../cmd.version=..."
var version = "dev"

var (
	debug      bool
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "paycopilot",
	Short: "Conversational analytics over payment transactions",
	Long: `PayCopilot answers natural-language questions about payment
transaction events by generating, repairing and running SQL, then
summarising the results.

Usage:
  paycopilot serve                     # Start the HTTP API
  paycopilot ask "failed transfers?"   # Ask one question
  paycopilot sql "failed transfers?"   # Show the SQL only
  paycopilot chats list                # Browse stored conversations
  paycopilot mcp                       # Serve MCP tools over stdio`,
	Version:           version,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, debug)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		setupLogging(cfg)
		config.Watch(func(c *config.Config) {
			applyLogLevel(log.Default(), c)
			log.Info("configuration reloaded", "level", c.Log.Level)
		})
		return nil
	},
}

// setupLogging installs the process logger described by the config. Logs go
// to stderr so command output on stdout stays clean.
func setupLogging(cfg *config.Config) {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(log.JSONFormatter)
	}
	applyLogLevel(logger, cfg)
	log.SetDefault(logger)
}

func applyLogLevel(logger *log.Logger, cfg *config.Config) {
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
		return
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warn("unknown log level, using info", "level", cfg.Log.Level)
		level = log.InfoLevel
	}
	logger.SetLevel(level)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(mcpCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
