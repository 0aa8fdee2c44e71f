// Package main provides the vibe-seqscore command-line tool.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/config"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitError
	}
	return ExitSuccess
}

// cli carries state shared by all subcommands.
type cli struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), logger: zap.NewNop()}

	cmd := &cobra.Command{
		Use:   "vibe-seqscore",
		Short: "Sequence-disruption scoring across fused, foundation-model and oracle engines",
		Long: `vibe-seqscore scores genomic variants for sequence disruption. Each variant is
tried against a fused missense-effect service, then a DNA foundation model probed
over several context windows on both strands, then a sequence-context oracle, and
the first usable result is reported with its provenance.`,
		Example: `  vibe-seqscore score 7:140453136:A:T
  vibe-seqscore score --ensemble --max-fidelity chr17-7674220-C-T
  vibe-seqscore batch -f tab -o scores.tsv input.vcf.gz`,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(c.verbose)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			c.logger = logger
			return c.initConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", "", "Config file (default: ~/.vibe-seqscore.yaml)")
	pf.BoolVar(&c.verbose, "verbose", false, "Human-readable debug logging")
	pf.String("cache-url", "", "Score cache (redis://, duckdb://, sqlite://)")
	pf.String("fusion-url", "", "Fused missense-effect service URL")
	pf.String("evo-url", "", "Foundation-model scoring service URL")
	pf.String("force-model", "", "Pin a single model and skip ensembling")
	pf.String("force-path", "", "Restrict scoring to one path: fusion, foundation_model or oracle")
	pf.Bool("disable-fusion", false, "Never consult the fused missense-effect service")
	pf.Bool("spam-safe", false, "Cap backend calls per variant and probe forward strand only")

	for key, flag := range map[string]string{
		config.KeyCacheURL:      "cache-url",
		config.KeyFusionURL:     "fusion-url",
		config.KeyFoundationURL: "evo-url",
		config.KeyForceModel:    "force-model",
		config.KeyForcePath:     "force-path",
		config.KeyDisableFusion: "disable-fusion",
		config.KeySpamSafe:      "spam-safe",
	} {
		_ = c.v.BindPFlag(key, pf.Lookup(flag))
	}

	cmd.AddCommand(newScoreCmd(c))
	cmd.AddCommand(newBatchCmd(c))
	cmd.AddCommand(newDownloadCmd(c))
	cmd.AddCommand(newCacheCmd(c))
	cmd.AddCommand(newConfigCmd(c))

	return cmd
}

// initConfig loads defaults, environment and the config file into c.v.
func (c *cli) initConfig() error {
	if c.cfgFile == "" {
		return config.Init(c.v)
	}
	config.SetDefaults(c.v)
	if err := config.BindEnv(c.v); err != nil {
		return err
	}
	c.v.SetConfigFile(c.cfgFile)
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", c.cfgFile, err)
	}
	return nil
}

// service resolves the configuration and builds the scoring service.
func (c *cli) service() (*app, error) {
	cfg, err := config.Load(c.v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return buildService(cfg, c.logger)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openOutput returns the output destination: stdout when path is empty.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}
