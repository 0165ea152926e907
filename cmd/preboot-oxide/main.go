// preboot-oxide is a PXE network boot helper: a DHCP-proxy (ProxyDHCP)
// that never hands out addresses of its own, paired with a read-only
// TFTP server for boot files (§1, §4).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexculea/preboot-oxide/internal/lock"
	"github.com/alexculea/preboot-oxide/internal/netconf"
	"github.com/alexculea/preboot-oxide/internal/poerr"
	"github.com/alexculea/preboot-oxide/internal/supervisor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile        string
	ifaces         []string
	tftpServerDir  string
	bootFile       string
	bootServerIPv4 string
	maxSessions    int
	logLevel       string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "preboot-oxide",
	Short: "A DHCP-proxy and TFTP server for PXE network booting",
	Long: `preboot-oxide answers PXE boot requests alongside an existing,
authoritative DHCP server: it never assigns addresses itself, it only
tells booting clients where to fetch their boot file from. Pair it with a
configured boot_file/boot_server_ipv4 ruleset and, optionally, its own
read-only TFTP server.`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "conf", "", "path to the YAML configuration file (default $HOME/.config/preboot-oxide/preboot-oxide.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&ifaces, "ifaces", nil, "network interfaces to listen on (default: all non-loopback interfaces with an IPv4 address)")
	rootCmd.PersistentFlags().StringVar(&tftpServerDir, "tftp-dir", "", "directory to serve over the built-in TFTP server; empty disables it")
	rootCmd.PersistentFlags().StringVar(&bootFile, "boot-file", "", "default boot_file to hand out when no match rule overrides it")
	rootCmd.PersistentFlags().StringVar(&bootServerIPv4, "tftp-server-ipv4", "", "default boot_server_ipv4 to hand out when no match rule overrides it")
	rootCmd.PersistentFlags().IntVar(&maxSessions, "max-sessions", 0, "maximum number of in-flight DHCP transactions tracked at once (default 500)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
}

func initViper() {
	viper.SetEnvPrefix("PO")
	viper.AutomaticEnv()
}

func run(cmd *cobra.Command, args []string) error {
	resolvedLogLevel := logLevel
	if !cmd.Flags().Changed("log-level") {
		if v := os.Getenv("PO_LOG_LEVEL"); v != "" {
			resolvedLogLevel = v
		}
	}

	log, err := newLogger(resolvedLogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	confPath := netconf.ConfPath(cfgFile)
	l, err := lock.Acquire(confPath)
	if err != nil {
		if errors.Is(err, poerr.ErrAlreadyRunning) {
			return fmt.Errorf("another preboot-oxide instance is already running against %s", confPath)
		}
		return err
	}
	defer l.Release()

	cliOverrides := netconf.Overrides{Ifaces: ifaces}
	if cmd.Flags().Changed("tftp-dir") {
		cliOverrides.TftpServerDir = &tftpServerDir
	}
	if cmd.Flags().Changed("boot-file") {
		cliOverrides.BootFile = &bootFile
	}
	if cmd.Flags().Changed("tftp-server-ipv4") {
		cliOverrides.BootServerIP = &bootServerIPv4
	}
	if cmd.Flags().Changed("max-sessions") {
		cliOverrides.MaxSessions = &maxSessions
	}

	cfg, err := netconf.Load(cfgFile, cliOverrides)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	resolver, err := netconf.Compile(cfg)
	if err != nil {
		return fmt.Errorf("compiling match rules: %w", err)
	}

	tftpConfigured := cfg.TftpServerDir != "" || cfg.Default.BootServerIPv4 != nil
	for _, r := range cfg.Match {
		if r.Conf.BootServerIPv4 != nil {
			tftpConfigured = true
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Infow("preboot-oxide starting",
		"ifaces", cfg.Ifaces,
		"max_sessions", cfg.MaxSessions,
		"tftp_server_dir", cfg.TftpServerDir,
	)

	err = supervisor.Run(ctx, log, supervisor.Config{
		Ifaces:         cfg.Ifaces,
		MaxSessions:    cfg.MaxSessions,
		TftpServerDir:  cfg.TftpServerDir,
		Resolver:       resolver,
		TftpConfigured: tftpConfigured,
	})
	if err != nil {
		log.Errorw("preboot-oxide exiting", "err", err)
		return err
	}

	log.Infow("preboot-oxide shut down cleanly")
	return nil
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zap.AtomicLevel
	switch level {
	case "debug":
		lvl = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		lvl = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		lvl = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = lvl

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
