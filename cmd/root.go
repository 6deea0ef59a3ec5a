// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/rocev2/internal/config"
	"firestige.xyz/rocev2/internal/log"
	"firestige.xyz/rocev2/internal/metrics"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rocev2",
	Short: "rocev2 - RoCEv2 frame crafting and iCRC verification",
	Long: `rocev2 builds RoCEv2 (RDMA over Converged Ethernet v2) frames from YAML
templates, computes and installs their invariant CRC, sends them on an
interface or into a pcap file, and verifies the iCRC of captured traffic.

Commands:
  craft     build frames from templates and print or save them
  send      send crafted frames at a fixed rate
  verify    check the iCRC of frames from a capture file or an interface
  icrc      compute the iCRC of one hex encoded frame
  validate  check templates without sending anything`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and ROCEV2_* environment variables when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level: debug/info/warn/error")

	// Add subcommands
	rootCmd.AddCommand(craftCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(icrcCmd)
	rootCmd.AddCommand(validateCmd)
}

// setup loads the configuration with the command's flags layered on top,
// initializes logging and starts the metrics server when enabled. The
// returned function stops the server.
func setup(cmd *cobra.Command, bindings map[string]string) (*config.GlobalConfig, func(), error) {
	all := map[string]string{"log.level": "log-level"}
	for k, v := range bindings {
		all[k] = v
	}
	cfg, err := config.LoadWithFlags(configFile, cmd.Flags(), all)
	if err != nil {
		return nil, nil, err
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	stop := func() {}
	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(context.Background()); err != nil {
			return nil, nil, err
		}
		stop = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(ctx); err != nil {
				log.GetLogger().WithError(err).Warn("failed to stop metrics server")
			}
		}
	}
	return cfg, stop, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
