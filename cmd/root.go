package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"loadceiling/internal/banner"
	"loadceiling/internal/catalog"
	"loadceiling/internal/cli"
	"loadceiling/internal/dummy"
	"loadceiling/internal/logging"
	"loadceiling/internal/report"
	"loadceiling/internal/runner"
	"loadceiling/internal/target"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, newRootCmd(), os.Args[1:], os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)

	var exit exitError
	switch {
	case err == nil:
		return report.ExitStable
	case errors.As(err, &exit):
		return exit.code
	default:
		fmt.Fprintf(stderr, "❌ %v\n", err)
		return report.ExitError
	}
}

type app struct {
	v      *viper.Viper
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "loadceiling",
		Short: "loadceiling - find the concurrency a query service can sustain",
		Long: `
loadceiling escalates concurrent query workers against a ClickHouse server in
fixed steps, stops at the first stage that shows overload, and reports the
highest stable concurrency level.

Modes:
1. Headless (default): stage-by-stage lines and a summary table
2. Live view (--tui): interactive terminal UI
3. Machine readable (--json): the full run report on stdout`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initConfig(cfgFile); err != nil {
				return err
			}
			logger, err := logging.New(a.v.GetString("log-level"), a.v.GetBool("log-json"))
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.start(cmd, nil)
		},
	}

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), banner.GetString())
		cmd.Usage()
	})

	def := runner.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.loadceiling.yaml)")

	flags.String("host", def.Host, "ClickHouse host")
	flags.Int("port", def.Port, "ClickHouse native protocol port")
	flags.String("database", def.Database, "Database name")
	flags.String("user", def.User, "User name")
	flags.String("password", "", "Password")

	flags.Int("start-workers", def.StartWorkers, "Concurrency of the first stage")
	flags.Int("max-workers", def.MaxWorkers, "Highest concurrency to try")
	flags.Int("step", def.Step, "Workers added per stage")
	flags.Int("units", def.UnitsPerStage, "Queries executed per stage")

	flags.Float64("stop-success-rate", def.Thresholds.StopSuccessRate, "Stop when a stage's success rate falls below this percentage")
	flags.Int("stop-conn-failures", def.Thresholds.StopConnFailures, "Stop when a stage has more connection failures than this")
	flags.Float64("stable-success-rate", def.Thresholds.StableSuccessRate, "Minimum success rate of a stable stage")
	flags.Int("stable-conn-failures", def.Thresholds.StableConnFailures, "A stable stage has fewer connection failures than this")

	flags.Duration("pause", def.Pause, "Pause between stages")
	flags.Duration("connect-timeout", def.ConnectTimeout, "Connection establishment timeout")
	flags.Duration("io-timeout", def.IOTimeout, "Query I/O timeout")
	flags.String("conn-policy", string(def.ConnPolicy), "Connection policy: fresh (one per query) or shared")
	flags.Int64("seed", 0, "Seed for query sampling (0 = time based)")
	flags.Int("progress-every", def.ProgressEvery, "Completions between progress lines")
	flags.String("queries", "", "YAML query catalog replacing the built-in workload")

	flags.StringP("out", "o", "", "Output filename prefix for <prefix>.json and <prefix>.csv")
	flags.Bool("json", false, "Print the run report as JSON instead of the summary table")
	flags.Bool("tui", false, "Show the live terminal view")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9102)")
	flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Log as JSON")

	_ = a.v.BindPFlags(flags)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the escalation against ClickHouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.start(cmd, nil)
		},
	}

	dummyCmd := &cobra.Command{
		Use:   "dummy",
		Short: "Run the escalation against the built-in simulated target",
		RunE: func(cmd *cobra.Command, args []string) error {
			preset, err := dummy.Preset(a.v.GetString("preset"))
			if err != nil {
				return err
			}
			return a.start(cmd, &preset)
		},
	}
	dummyCmd.Flags().String("preset", "overload", fmt.Sprintf("Simulated target profile %v", dummy.PresetNames()))
	_ = a.v.BindPFlag("preset", dummyCmd.Flags().Lookup("preset"))

	queriesCmd := &cobra.Command{
		Use:   "queries",
		Short: "List the query catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.catalog()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, q := range cat.Queries() {
				fmt.Fprintf(out, "-- %s\n%s\n\n", q.Name, q.Text)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, dummyCmd, queriesCmd)
	return rootCmd
}

func (a *app) initConfig(cfgFile string) error {
	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(home)
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".loadceiling")
	}

	a.v.SetEnvPrefix("LOADCEILING")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// config assembles the run configuration from flags, env and config file.
func (a *app) config() (runner.Config, error) {
	v := a.v
	policy, err := target.ParsePolicy(v.GetString("conn-policy"))
	if err != nil {
		return runner.Config{}, &runner.ConfigError{Field: "conn_policy", Reason: err.Error()}
	}

	return runner.Config{
		Host:          v.GetString("host"),
		Port:          v.GetInt("port"),
		Database:      v.GetString("database"),
		User:          v.GetString("user"),
		Password:      v.GetString("password"),
		StartWorkers:  v.GetInt("start-workers"),
		MaxWorkers:    v.GetInt("max-workers"),
		Step:          v.GetInt("step"),
		UnitsPerStage: v.GetInt("units"),
		Thresholds: runner.Thresholds{
			StopSuccessRate:    v.GetFloat64("stop-success-rate"),
			StopConnFailures:   v.GetInt("stop-conn-failures"),
			StableSuccessRate:  v.GetFloat64("stable-success-rate"),
			StableConnFailures: v.GetInt("stable-conn-failures"),
		},
		Pause:          v.GetDuration("pause"),
		ConnectTimeout: v.GetDuration("connect-timeout"),
		IOTimeout:      v.GetDuration("io-timeout"),
		ConnPolicy:     policy,
		Seed:           v.GetInt64("seed"),
		ProgressEvery:  v.GetInt("progress-every"),
	}, nil
}

func (a *app) catalog() (*catalog.Catalog, error) {
	if path := a.v.GetString("queries"); path != "" {
		return catalog.Load(path)
	}
	return catalog.Default(), nil
}

func (a *app) start(cmd *cobra.Command, sim *dummy.ServerConfig) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	code, err := cli.Start(cmd.Context(), cli.Options{
		Config:      cfg,
		Dummy:       sim,
		QueriesFile: a.v.GetString("queries"),
		OutPrefix:   a.v.GetString("out"),
		JSON:        a.v.GetBool("json"),
		TUI:         a.v.GetBool("tui"),
		MetricsAddr: a.v.GetString("metrics-addr"),
		Stdout:      cmd.OutOrStdout(),
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	if code != report.ExitStable {
		return exitError{code: code}
	}
	return nil
}
