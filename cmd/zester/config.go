package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"zester/pkg/auth"
	"zester/pkg/config"
	"zester/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage zester configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (ZESTER_*, also read from .env)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file holding every option at its default value.

The file is created at $HOME/.config/zester/config.yaml unless a
different path is given with --config.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging every source.

Credentials are masked.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Load the configuration from every source and check that the values
are usable, then check that the output and log paths can be created.`,
	Run: runConfigValidate,
}

// pathCmd represents the config path command
var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file in use",
	Run:   runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
	configCmd.AddCommand(pathCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store an account with 'zester auth login'")
	fmt.Println("2. Run 'zester config validate' to check the configuration")
	fmt.Println("3. Start archiving with 'zester archive'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	display := *cfg
	masked := auth.SanitizeAccount(&auth.Account{
		OAuthToken: cfg.SoundCloud.OAuthToken,
		ClientID:   cfg.SoundCloud.ClientID,
	})
	if display.SoundCloud.OAuthToken != "" {
		display.SoundCloud.OAuthToken = masked.OAuthToken
	}
	if display.SoundCloud.ClientID != "" {
		display.SoundCloud.ClientID = masked.ClientID
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (ZESTER_*)")
	if path := configPathInUse(); path != "" {
		fmt.Printf("3. Configuration file: %s\n", path)
	} else {
		fmt.Println("3. Configuration file: (none found)")
	}
	fmt.Println("4. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if path := configPathInUse(); path != "" {
		ui.PrintInfo("Validating configuration", path)
	} else {
		ui.PrintInfo("Validating configuration", "defaults and environment")
	}

	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	var warnings, problems []string

	if cfg.SoundCloud.OAuthToken == "" && cfg.SoundCloud.ClientID == "" {
		manager, err := auth.NewManager()
		if err == nil {
			if _, _, err = manager.Credential(cfg.SoundCloud.Account); err != nil {
				warnings = append(warnings, "no usable stored credentials: "+err.Error())
			}
		} else {
			warnings = append(warnings, "credential store unavailable: "+err.Error())
		}
	} else if _, err := auth.NewCredential(cfg.SoundCloud.OAuthToken, cfg.SoundCloud.ClientID); err != nil {
		problems = append(problems, "configured credentials are invalid: "+err.Error())
	}

	if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("Cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}
	if cfg.RateLimit.Requests > 0 && cfg.RateLimit.Window > 0 {
		perMinute := float64(cfg.RateLimit.Requests) / cfg.RateLimit.Window.Minutes()
		if perMinute > 60 {
			warnings = append(warnings, fmt.Sprintf("%.0f requests per minute risks throttling", perMinute))
		}
	}

	for _, w := range warnings {
		ui.PrintWarning("Warning", w)
	}
	if len(problems) > 0 {
		for _, p := range problems {
			ui.PrintError("Error", p)
		}
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration is valid")
}

func runConfigPath(cmd *cobra.Command, args []string) {
	if path := configPathInUse(); path != "" {
		fmt.Println(path)
		return
	}
	fmt.Printf("(none found; 'zester config init' writes %s)\n", config.DefaultConfigPath())
}

// configPathInUse returns the file config.Load reads, or ""
func configPathInUse() string {
	if configFile != "" {
		return configFile
	}
	return config.FindConfigFile()
}
