package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/go-tangra/go-tangra-condiag/internal/codec"
	"github.com/go-tangra/go-tangra-condiag/internal/collector"
	"github.com/go-tangra/go-tangra-condiag/internal/config"
	"github.com/go-tangra/go-tangra-condiag/internal/vsphere"
)

var (
	version    = "dev"
	commitHash = "unknown"
	buildDate  = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vmware-condiag",
	Short: "vSphere connection diagnostics",
	Long: `vmware-condiag logs in to a vCenter or ESXi management endpoint and
reports its inventory: host and virtual machine addresses, host CIM
telemetry and one sample of every performance counter.

Run without a subcommand to collect a full report.`,
	SilenceUsage: true,
	RunE:         runReport,
}

var checkCmd = &cobra.Command{
	Use:          "check",
	Short:        "Connect, print the endpoint's about info and disconnect",
	SilenceUsage: true,
	RunE:         runCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vmware-condiag %s (commit: %s, built: %s)\n", version, commitHash, buildDate)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./condiag.yaml)")
	pf.String("host", "", "management endpoint host[:port]")
	pf.String("user", "", "login user")
	pf.String("pass", "", "login password")
	pf.Duration("timeout", 0, "connect and read timeout (default 60s)")
	pf.Bool("insecure", true, "accept any server certificate and hostname")
	pf.String("log-level", "", "log level: debug, info, warn, error (default info)")
	pf.String("log-format", "", "log format: text or json (default text)")

	f := rootCmd.Flags()
	f.StringSlice("cim-class", nil, "CIM class to enumerate on each host, repeatable (default CIM_NumericSensor)")
	f.Bool("skip-cim", false, "do not query host CIM agents")
	f.Bool("skip-metrics", false, "do not sample performance counters")
	f.StringP("output", "o", "", "write the report to file instead of stdout")
	f.String("format", "", "report format: json, yaml or prometheus (default json)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// CLI flag overrides.
	flags := cmd.Flags()
	if v, _ := flags.GetString("host"); v != "" {
		cfg.Host = v
	}
	if v, _ := flags.GetString("user"); v != "" {
		cfg.User = v
	}
	if v, _ := flags.GetString("pass"); v != "" {
		cfg.Pass = v
	}
	if v, _ := flags.GetDuration("timeout"); v != 0 {
		cfg.Timeout = v
	}
	if flags.Changed("insecure") {
		cfg.Insecure, _ = flags.GetBool("insecure")
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	if flags.Lookup("cim-class") != nil {
		if v, _ := flags.GetStringSlice("cim-class"); len(v) > 0 {
			cfg.CIMClasses = v
		}
		if flags.Changed("skip-cim") {
			cfg.SkipCIM, _ = flags.GetBool("skip-cim")
		}
		if flags.Changed("skip-metrics") {
			cfg.SkipMetrics, _ = flags.GetBool("skip-metrics")
		}
		if v, _ := flags.GetString("output"); v != "" {
			cfg.Output = v
		}
		if v, _ := flags.GetString("format"); v != "" {
			cfg.Format = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	return log, nil
}

func passwordDigest(pass string) string {
	sum := sha256.Sum256([]byte(pass))
	return hex.EncodeToString(sum[:])
}

func connect(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*vsphere.Session, error) {
	log.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"user":     cfg.User,
		"password": passwordDigest(cfg.Pass),
	}).Info("Connecting")

	m := vsphere.NewManager(log)
	if cfg.Insecure {
		m.RelaxTrust()
	}

	sess, err := m.Connect(ctx, cfg.Host, cfg.User, cfg.Pass)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 && !sess.SetTimeout(cfg.Timeout) {
		log.Warnf("Cannot apply timeout %s to the session transport", cfg.Timeout)
	}
	return sess, nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sess.Disconnect(ctx)

	about := sess.About()
	fmt.Fprintf(cmd.OutOrStdout(), "%s\napi: %s %s (major %d)\nbuild: %s\n",
		about.FullName, about.APIType, about.APIVersion, sess.MajorAPIVersion(), about.Build)
	return nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	format, err := codec.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sess.Disconnect(ctx)

	report, err := collector.Run(ctx, sess, collector.Options{
		CIMClasses:  cfg.CIMClasses,
		SkipCIM:     cfg.SkipCIM,
		SkipMetrics: cfg.SkipMetrics,
		Log:         log,
	})
	if err != nil {
		log.WithError(err).Warn("Report is incomplete")
	}

	var w io.Writer = cmd.OutOrStdout()
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := codec.Encode(w, report, format); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if cfg.Output != "" {
		log.Infof("Report written to %s", cfg.Output)
	}
	return nil
}
