package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"zester/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	logFormat  string
	noColor    bool
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zester",
	Short: "Archive your SoundCloud likes, playlists and comments",
	Long: `zester is a command-line tool that snapshots the collections of a
SoundCloud account into local files.

Features:
  - Secure credential storage using the system keychain
  - Cursor pagination with duplicate suppression
  - Rate limiting shared across collections (in-process or Redis)
  - Automatic retry honouring Retry-After
  - JSON, YAML and NDJSON snapshots
  - Prometheus metrics endpoint`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !term.IsTerminal(int(os.Stdout.Fd())) {
			ui.SetColor(false)
		}

		// logs stay out of the way of the status line unless asked for
		switch {
		case quiet:
			logLevel = "error"
		case logLevel != "":
		case verbose:
			logLevel = "debug"
		default:
			logLevel = "error"
		}

		if !quiet && cmd.Name() == "archive" {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.config/zester/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print every crawl event and debug logs")

	rootCmd.SetVersionTemplate(`zester {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags returns the persistent flags in the form config.Load merges
func globalFlags() map[string]interface{} {
	return map[string]interface{}{
		"log-level":  logLevel,
		"log-format": logFormat,
	}
}
