// Package cmd implements the daemon's command-line surface: the
// default daemon command, the udevadm-style query subcommand, and the
// rules check subcommand for rule-file authoring.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smazurov/udevd/internal/actions"
	"github.com/smazurov/udevd/internal/config"
	"github.com/smazurov/udevd/internal/daemon"
	"github.com/smazurov/udevd/internal/logging"
	"github.com/smazurov/udevd/internal/metrics"
	"github.com/smazurov/udevd/internal/netlink"
	"github.com/smazurov/udevd/internal/rules"
)

// Options is the daemon's flat configuration surface, loaded in
// precedence order CLI flag > environment variable > TOML file.
type Options struct {
	Config string

	RulesDirs  []string `toml:"rules.dirs" env:"RULES_DIRS"`
	DeviceRoot string   `toml:"device.root" env:"DEVICE_ROOT"`
	Workers    int      `toml:"daemon.workers" env:"DAEMON_WORKERS"`
	RequireUSB bool     `toml:"daemon.require_usb" env:"DAEMON_REQUIRE_USB"`

	MetricsAddr string `toml:"metrics.addr" env:"METRICS_ADDR"`

	LoggingLevel  string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingRules  string `toml:"logging.rules" env:"LOGGING_RULES"`
	LoggingDaemon string `toml:"logging.daemon" env:"LOGGING_DAEMON"`
}

// Execute builds the root command and runs it against os.Args.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	opts := &Options{}

	root := &cobra.Command{
		Use:   "udevd",
		Short: "Hot-plug device manager: netlink event daemon and query tool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.Config, "config", "c", "config.toml", "Path to configuration file")
	flags.StringSliceVar(&opts.RulesDirs, "rules-dirs", []string{"/etc/udevd/rules.d"}, "Rule directories, in load order")
	flags.StringVar(&opts.DeviceRoot, "device-root", "/dev", "Root directory for device nodes and symlinks")
	flags.IntVar(&opts.Workers, "workers", 8, "Worker pool size for per-event action execution")
	flags.BoolVar(&opts.RequireUSB, "require-usb", false, "Only dispatch events reporting a USB device")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", ":9120", "Prometheus /metrics listen address")
	flags.StringVar(&opts.LoggingLevel, "logging-level", "info", "Global logging level (debug, info, warn, error)")
	flags.StringVar(&opts.LoggingFormat, "logging-format", "text", "Logging format (text, json)")
	flags.StringVar(&opts.LoggingRules, "logging-rules", "info", "Rules package logging level")
	flags.StringVar(&opts.LoggingDaemon, "logging-daemon", "info", "Daemon package logging level")

	root.AddCommand(newInfoCommand())
	root.AddCommand(newRulesCommand(opts))

	return root
}

func runDaemon(cmd *cobra.Command, opts *Options) error {
	if err := config.LoadConfig(opts, cmd); err != nil {
		slog.Warn("failed to load config", "error", err)
	}

	logging.Initialize(logging.Config{
		Level:  opts.LoggingLevel,
		Format: opts.LoggingFormat,
		Modules: map[string]string{
			"rules":  opts.LoggingRules,
			"daemon": opts.LoggingDaemon,
		},
	})

	logger := logging.GetLogger("daemon")

	ingestor, err := netlink.New()
	if err != nil {
		return fmt.Errorf("open netlink socket: %w", err)
	}
	defer ingestor.Close()

	rulesLogger := logging.GetLogger("rules")
	rules.OnDroppedRun = func(command string) {
		rulesLogger.Warn("dropped RUN+= with no ACTION== predicate in effect", "command", command)
	}

	ruleManager := rules.NewManager(opts.RulesDirs, rulesLogger)
	defer ruleManager.Close()

	logWatcher := config.NewConfigWatcher(opts.Config, func(path string) (logging.Config, error) {
		return config.LoadLoggingConfig(path), nil
	}, logger)
	logWatcher.OnReload(logging.Initialize)
	if err := logWatcher.Start(); err != nil {
		logger.Warn("config file watch disabled, logging level changes require a restart", "error", err)
	} else {
		defer logWatcher.Stop()
	}

	executor := actions.New(opts.DeviceRoot, logger)

	d := daemon.New(ingestor, ruleManager, executor, opts.Workers, logger)
	d.RequireUSB = opts.RequireUSB

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metrics.Serve(ctx, opts.MetricsAddr)

	logger.Info("starting daemon", "rules_dirs", opts.RulesDirs, "device_root", opts.DeviceRoot, "workers", opts.Workers)

	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	return d.Run(stop)
}
