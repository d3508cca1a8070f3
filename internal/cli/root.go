// Package cli implements the yt-converter command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ytget/yt-converter/internal/config"
)

// DotEnvFile is loaded from the working directory when present
const DotEnvFile = ".env"

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:               "yt-converter",
	Short:             "Convert online videos to mp3 or mp4 over HTTP",
	Long:              `yt-converter serves an HTTP API that downloads a video with yt-dlp, stores the result under a one-time token and evicts it after a retention period.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (YAML); environment variables prefixed YTC_ override it")
	rootCmd.AddCommand(serveCmd, sweepCmd)
}

// loadConfig builds the process configuration once before any command runs
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(DotEnvFile); err != nil {
		return err
	}
	loaded, err := config.Load(viper.New(), cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded
	return nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
