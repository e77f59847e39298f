package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DragonSecurity/podrelay/pkg/config"
)

var Version = "dev"

var Commit = "none"

var Date = "unknown"
var cfgFile string
var envFile string
var verbose bool

var rootCmd = &cobra.Command{
	Use:          "podrelay",
	Short:        "podrelay: JSON-RPC failover relay for the pod network",
	Version:      fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date),
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log relay attempts")
	rootCmd.PersistentFlags().StringSlice("candidates", nil, "ordered backend list (overrides config)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "per-attempt timeout (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides config)")

	_ = viper.BindPFlag("relay.candidates", rootCmd.PersistentFlags().Lookup("candidates"))
	_ = viper.BindPFlag("relay.attempt_timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	config.SetDefaults(viper.GetViper())
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// A missing .env is normal; a broken one is worth a warning.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %s: %v\n", envFile, err)
	}

	viper.SetEnvPrefix("PODRELAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("podrelay")
		viper.AddConfigPath(".")
		if home, _ := os.UserHomeDir(); home != "" {
			viper.AddConfigPath(filepath.Join(home, ".podrelay"))
		}
		viper.AddConfigPath("/etc/podrelay")
	}
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: config: %v\n", err)
		}
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
