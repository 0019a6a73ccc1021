// Command canctl inspects and drives SocketCAN interfaces: it lists them,
// dumps and sends frames, replays candump logs and configures links over
// rtnetlink.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	socketcan "github.com/lion187chen/socketcan-go/v2"
	"github.com/lion187chen/socketcan-go/v2/internal/logging"
	"github.com/lion187chen/socketcan-go/v2/internal/metrics"
)

var (
	configPath string
	flagValues = defaultConfig()

	// cfg is the effective configuration once the root command's
	// PersistentPreRunE ran.
	cfg        Config
	log        *slog.Logger
	metricsSrv *http.Server

	builtCommit = "dev"
)

var (
	rootCmd = &cobra.Command{
		Use:               "canctl",
		Short:             "Inspect and drive SocketCAN interfaces.",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: teardown,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the built version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("built commit: %s\n", builtCommit)
		},
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(cfg.String())
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML configuration file (default "+defaultConfigPath+" if present)")
	pf.StringVarP(&flagValues.Interface, "iface", "i", flagValues.Interface, "CAN interface")
	pf.BoolVar(&flagValues.FD, "fd", flagValues.FD, "Open CAN FD sockets")
	pf.DurationVar(&flagValues.ReadTimeout, "read-timeout", flagValues.ReadTimeout, "Per-read timeout; 0 waits forever")
	pf.StringVar(&flagValues.LogLevel, "log-level", flagValues.LogLevel, "Log level: debug|info|warn|error")
	pf.StringVar(&flagValues.LogFormat, "log-format", flagValues.LogFormat, "Log format: text|json")
	pf.BoolVar(&flagValues.LogTime, "log-time", flagValues.LogTime, "Include timestamps in log lines")
	pf.StringVar(&flagValues.MetricsAddr, "metrics-addr", flagValues.MetricsAddr, "Metrics HTTP listen address (e.g. :9100); empty disables")

	// canctl ships no shell completion command.
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd, configCmd, ifacesCmd, dumpCmd, sendCmd, playCmd, linkCmd)
}

// setup layers the configuration sources and installs the logger and the
// metrics endpoint.
func setup(cmd *cobra.Command, args []string) error {
	c, err := readConfig(configFile(configPath, os.Stat))
	if err != nil {
		return err
	}
	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	if err := c.applyEnv(changed, os.LookupEnv); err != nil {
		return fmt.Errorf("environment override error: %w", err)
	}
	for name, apply := range map[string]func(){
		"iface":        func() { c.Interface = flagValues.Interface },
		"fd":           func() { c.FD = flagValues.FD },
		"read-timeout": func() { c.ReadTimeout = flagValues.ReadTimeout },
		"log-level":    func() { c.LogLevel = flagValues.LogLevel },
		"log-format":   func() { c.LogFormat = flagValues.LogFormat },
		"log-time":     func() { c.LogTime = flagValues.LogTime },
		"metrics-addr": func() { c.MetricsAddr = flagValues.MetricsAddr },
	} {
		if changed(name) {
			apply()
		}
	}
	if err := c.validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	cfg = c

	lvl, _ := logging.ParseLevel(cfg.LogLevel)
	log = logging.New(os.Stderr, logging.Options{Format: cfg.LogFormat, Level: lvl, NoTime: !cfg.LogTime}).With("app", "canctl")
	socketcan.SetLogger(log)
	slog.SetDefault(log)

	if cfg.MetricsAddr != "" {
		metricsSrv = metrics.StartHTTP(cfg.MetricsAddr)
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) {
	if metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(ctx); err != nil {
		log.Warn("metrics_shutdown_error", "error", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
