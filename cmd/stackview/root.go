package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/stackview"
)

var (
	cfgFile string
	config  *Config
	vp      = viper.New()
	printer = message.NewPrinter(language.English)
)

var rootCmd = &cobra.Command{
	Use:   "stackview",
	Short: "Render and inspect medical image studies",
	Long: `stackview drives the stackview viewer core from the command line: render a
study image with a window preset, play a study as a cine loop while exporting
metrics, derive quality tiers for an image and manage the image cache.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = LoadConfig(vp, cfgFile)
		if err != nil {
			return err
		}
		logger, err := config.Logging.NewLogger(os.Stderr)
		if err != nil {
			return err
		}
		stackview.SetLogger(logger)
		return nil
	},
}

// Execute runs the root command.
// Interrupts cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./stackview.yaml)")

	rootCmd.PersistentFlags().String("cache-backend", "memory", "cache backend (memory, leveldb, redis)")
	rootCmd.PersistentFlags().String("cache-path", "stackview-cache", "leveldb cache directory")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "redis address")
	rootCmd.PersistentFlags().String("cache-budget", "50MiB", "cache size budget")
	rootCmd.PersistentFlags().String("profile", "desktop", "device profile (desktop, touch)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	_ = vp.BindPFlag("cache.backend", rootCmd.PersistentFlags().Lookup("cache-backend"))
	_ = vp.BindPFlag("cache.path", rootCmd.PersistentFlags().Lookup("cache-path"))
	_ = vp.BindPFlag("cache.redis_addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	_ = vp.BindPFlag("cache.budget", rootCmd.PersistentFlags().Lookup("cache-budget"))
	_ = vp.BindPFlag("viewer.profile", rootCmd.PersistentFlags().Lookup("profile"))
	_ = vp.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = vp.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(renderCmd, playCmd, tiersCmd, cacheCmd)
}
