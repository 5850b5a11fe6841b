package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emmersive/akamai-cache-tester/internal/config"
	"github.com/emmersive/akamai-cache-tester/internal/core"
	"github.com/emmersive/akamai-cache-tester/internal/input"
	"github.com/emmersive/akamai-cache-tester/internal/networking"
	"github.com/emmersive/akamai-cache-tester/internal/output"
	"github.com/emmersive/akamai-cache-tester/internal/report"
	"github.com/emmersive/akamai-cache-tester/internal/utils"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cachetester [url...]",
	Short: "Probes URLs through Akamai and classifies cache hits and misses",
	Long: `cachetester fetches every page of a sitemap (or a URL list) with
Akamai debug headers enabled, classifies each response as a cache hit,
miss or refresh, and optionally fingerprints pages for Adobe Experience
Manager. Results are reported as text, JSON or CSV.`,
	Version:       Version,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
	RunE: runProbe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default ./cachetester.yaml)")
	flags.StringP("sitemap", "s", "", "sitemap URL to discover target pages from")
	flags.StringP("targets", "t", "", "file with one target URL per line (\"-\" for stdin)")
	flags.Int("batch-size", 3, "number of URLs probed per batch")
	flags.Duration("batch-delay", 1*time.Second, "pause between batches")
	flags.Int("concurrency", 10, "maximum in-flight probes within a batch")
	flags.Int("max-urls", 100, "probe at most this many URLs")
	flags.Duration("timeout", 15*time.Second, "timeout per probe request")
	flags.Duration("sitemap-timeout", 240*time.Second, "timeout for sitemap downloads")
	flags.Int("retries", 0, "retries per failed request")
	flags.String("user-agent", config.DefaultUserAgent, "User-Agent header sent with every request")
	flags.Bool("insecure", false, "skip TLS certificate verification")
	flags.Bool("check-aem", true, "fingerprint responses for Adobe Experience Manager")
	flags.Int("hit-threshold", 100, "response time (ms) below which an unlabeled response is an inferred hit")
	flags.Int("miss-threshold", 500, "response time (ms) above which an unlabeled response is an inferred miss")
	flags.StringP("output", "o", "", "write the report to this file instead of stdout")
	flags.StringP("format", "f", "text", "report format (text, json, csv)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "write logs to this rotated file instead of stderr")
	flags.Bool("silent", false, "suppress logs and the text summary")
	flags.Bool("no-color", false, "disable colored log output")
	flags.Bool("no-progress", false, "disable the progress bar")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeConfig wires flags, CACHETESTER_* environment variables and an
// optional YAML config file into Viper. Precedence: flags > env > file >
// defaults.
func initializeConfig(cmd *cobra.Command) error {
	// A .env file is optional; ignore its absence.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("cachetester")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CACHETESTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return viper.BindPFlags(cmd.Flags())
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return err
	}
	logger := utils.NewLogger(cfg.LogLevel, cfg.NoColor, cfg.Silent, cfg.LogFile)

	if cfg.SitemapURL == "" && cfg.TargetsFile == "" && len(args) == 0 {
		return fmt.Errorf("no targets: provide --sitemap, --targets or URL arguments")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Debugf("Configuration: %s", cfg)

	client, err := networking.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	var source core.URLSource
	switch {
	case cfg.SitemapURL != "":
		source = input.NewSitemapSource(cfg, client, logger, utils.EnsureScheme(cfg.SitemapURL))
	case cfg.TargetsFile != "":
		source = input.NewFileSource(cfg.TargetsFile, logger)
	default:
		source = input.StaticSource(args)
	}

	tester := core.NewTester(cfg, source, client, logger)

	// The progress bar owns the stderr line while it runs, so log output is
	// routed through it to keep the two from garbling each other. With
	// --log-file the logs leave the terminal and no coordination is needed.
	var bar *output.ProgressBar
	if !cfg.NoProgress && !cfg.Silent && cfg.LogFile == "" {
		bar = output.NewProgressBar(40)
		bar.SetPrefix("Probing ")
		logger.SetOutput(bar.LogWriter(os.Stderr))
		tester.SetProgressSink(bar)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runReport, err := tester.Run(ctx)
	if bar != nil {
		bar.Finish()
		logger.SetOutput(os.Stderr)
	}
	if err != nil {
		return err
	}

	// Silent suppresses the human-readable summary on stdout; explicit
	// formats and output files are still honored.
	if cfg.Silent && cfg.OutputFile == "" && cfg.OutputFormat == "text" {
		return nil
	}
	return report.NewReporter(logger).Generate(runReport, cfg.OutputFile, cfg.OutputFormat)
}
