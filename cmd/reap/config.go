package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reap/pkg/reap/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage reap configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/reap/config.yaml (if set)
  2. ~/.config/reap/config.yaml

Environment variables can override config file settings using the REAP_ prefix:
  REAP_WORKERS=4
  REAP_ORDER=desc
  REAP_SPACE_GUARD_THRESHOLD_PERCENT=15`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Printf("Config file: %s\n\n", configFile)
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("workers:                        %d\n", cfg.Workers)
	fmt.Printf("order:                          %s\n", cfg.Order)
	fmt.Printf("retries:                        %d\n", cfg.Retries)
	fmt.Printf("include:                        %v\n", cfg.Include)
	fmt.Printf("exclude:                        %v\n", cfg.Exclude)
	fmt.Printf("quarantine_dir:                 %s\n", cfg.QuarantineDir)
	fmt.Printf("results_log:                    %s\n", cfg.ResultsLog)
	fmt.Printf("space_guard.threshold_percent:  %.1f\n", cfg.SpaceGuard.ThresholdPercent)
	fmt.Printf("space_guard.mount:              %s\n", cfg.SpaceGuard.Mount)
	fmt.Printf("space_guard.poll_interval:      %ds\n", cfg.SpaceGuard.PollIntervalSeconds)
	fmt.Printf("metadata.strict:                %t\n", cfg.Metadata.Strict)
	fmt.Printf("metadata.permission_weak:       %s\n", cfg.Metadata.PermissionWeak)
	fmt.Printf("metadata.normalize:             %t\n", cfg.Metadata.Normalize)
	fmt.Printf("dedup.min_size:                 %s\n", cfg.Dedup.MinSize)
	fmt.Printf("dedup.trusted_root:             %s\n", cfg.Dedup.TrustedRoot)
	fmt.Printf("history.enabled:                %t\n", cfg.History.Enabled)
	fmt.Printf("history.path:                   %s\n", cfg.History.Path)

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	envVars := []string{
		"REAP_WORKERS",
		"REAP_ORDER",
		"REAP_RETRIES",
		"REAP_QUARANTINE_DIR",
		"REAP_RESULTS_LOG",
		"REAP_SPACE_GUARD_THRESHOLD_PERCENT",
		"REAP_SPACE_GUARD_MOUNT",
		"REAP_METADATA_STRICT",
		"REAP_METADATA_PERMISSION_WEAK",
		"REAP_DEDUP_MIN_SIZE",
		"REAP_HISTORY_ENABLED",
	}

	anyOverrides := false
	for _, name := range envVars {
		if val := os.Getenv(name); val != "" {
			fmt.Printf("%s=%s\n", name, val)
			anyOverrides = true
		}
	}
	if !anyOverrides {
		fmt.Println("(none)")
	}

	return nil
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'reap config edit' to modify it.")
		return nil
	}

	if err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath prints the configuration file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get config directory: %w", err)
	}
	fmt.Println(filepath.Join(configDir, "config.yaml"))
	return nil
}
