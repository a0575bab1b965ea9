package main

import (
	"context"
	"io"

	"github.com/Sternrassler/openalex-client/internal/config"
	"github.com/Sternrassler/openalex-client/pkg/client"
	"github.com/Sternrassler/openalex-client/pkg/logging"
	"github.com/Sternrassler/openalex-client/pkg/metrics"
	"github.com/Sternrassler/openalex-client/pkg/openalex"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds what the subcommands share once the root has loaded its config.
type app struct {
	opts rootOptions

	cfg         *config.Config
	client      *client.Client
	redis       *redis.Client
	api         *openalex.OpenAlex
	logger      zerolog.Logger
	stopMetrics context.CancelFunc
}

type rootOptions struct {
	envFile     string
	configFile  string
	email       string
	apiKey      string
	logLevel    string
	metricsAddr string
}

// run executes the CLI with args and releases the client afterwards.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "alex",
		Short:         "Query the OpenAlex catalog",
		Version:       client.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.opts.envFile, "env-file", ".env", "dotenv file with OPENALEX_* variables")
	f.StringVar(&a.opts.configFile, "config", "", "config file (yaml, json or toml)")
	f.StringVar(&a.opts.email, "email", "", "contact email for the polite pool (OPENALEX_EMAIL)")
	f.StringVar(&a.opts.apiKey, "api-key", "", "OpenAlex api key (OPENALEX_API_KEY)")
	f.StringVar(&a.opts.logLevel, "log-level", "", "debug, info, warn or error (OPENALEX_LOG_LEVEL)")
	f.StringVar(&a.opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	for _, entity := range openalex.Entities {
		cmd.AddCommand(newEntityCmd(a, entity))
	}
	cmd.AddCommand(
		newAutocompleteCmd(a),
		newNgramsCmd(a),
		newDownloadCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(config.Options{EnvFile: a.opts.envFile, ConfigFile: a.opts.configFile})
	if err != nil {
		return err
	}
	if a.opts.email != "" {
		cfg.Email = a.opts.email
	}
	if a.opts.apiKey != "" {
		cfg.APIKey = a.opts.apiKey
	}
	if a.opts.metricsAddr != "" {
		cfg.MetricsAddr = a.opts.metricsAddr
	}
	if a.opts.logLevel != "" {
		if cfg.LogLevel, err = logging.ParseLevel(a.opts.logLevel); err != nil {
			return err
		}
	}

	lc := cfg.LoggingConfig()
	lc.Output = cmd.ErrOrStderr()
	logging.Setup(lc)
	a.logger = logging.NewLogger("alex")

	a.redis = cfg.NewRedis()
	c, err := client.New(cfg.ClientConfig(a.redis))
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.client = c
	a.api = openalex.New(c)

	if cfg.MetricsAddr != "" {
		ctx, cancel := context.WithCancel(cmd.Context())
		a.stopMetrics = cancel
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				a.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	a.logger.Debug().
		Str("base_url", cfg.BaseURL).
		Bool("polite_pool", cfg.Email != "").
		Bool("shared_rate_limit", a.redis != nil).
		Msg("Client ready")
	return nil
}

func (a *app) close() {
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
