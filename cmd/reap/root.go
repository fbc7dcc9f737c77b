package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/reap/pkg/reap/config"
	"github.com/jamesainslie/reap/pkg/reap/logging"
	"github.com/jamesainslie/reap/pkg/reap/types"
)

// timeRound is the display precision for durations.
const timeRound = 10 * time.Millisecond

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "reap",
		Short: "Verify backup archives and reclaim their space safely",
		Long: `Reap proves, byte for byte, that a backup archive's extracted contents
are identical to the archive's declared contents, and only then deletes the
original archive to reclaim storage.

Examples:
  reap verify backups/2025-08.tar.gz     # Verify one archive, delete on success
  reap batch /srv/backups -w 4           # Verify a whole corpus in parallel
  reap dedup /srv/extracted --execute    # Hard-link identical large files
  reap recover /srv/backups              # Finish interrupted deletes
  reap history                           # Past batch runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/reap/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			viper.AddConfigPath(filepath.Join(xdgConfigHome, "reap"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(homeDir, ".config", "reap"))
		}
	}

	viper.SetEnvPrefix("REAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	_ = viper.ReadInConfig()
}

// initLogging configures the logging system from viper settings.
// Verbose lowers the level to debug; the console mirrors warnings unless
// quiet is set.
func initLogging() error {
	level := viper.GetString("logging.level")
	if viper.GetBool("verbose") {
		level = "debug"
	}

	consoleLevel := "warn"
	if viper.GetBool("quiet") {
		consoleLevel = "error"
	}

	maxSize, err := types.ParseSize(viper.GetString("logging.rotation.max_size"))
	if err != nil {
		maxSize = 0 // writer applies its default
	}

	return logging.Init(logging.Config{
		Level: level,
		Path:  viper.GetString("logging.path"),
		Rotation: logging.RotationConfig{
			MaxSize:    maxSize,
			MaxAge:     viper.GetInt("logging.rotation.max_age"),
			MaxBackups: viper.GetInt("logging.rotation.max_backups"),
			Daily:      viper.GetBool("logging.rotation.daily"),
		},
		Components:   viper.GetStringMapString("logging.components"),
		ConsoleLevel: consoleLevel,
	})
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printInfo prints a message unless quiet mode is enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}
