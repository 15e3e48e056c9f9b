package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"geoimport/internal/config"
	"geoimport/internal/datasource/file"
	"geoimport/internal/ingest"
	"geoimport/internal/metrics"
	"geoimport/internal/metrics/datadog"
	"geoimport/internal/metrics/prompush"
	"geoimport/internal/sink"
	"geoimport/internal/sink/checksum"
)

// Deps holds the side-effecting entry points so the command can be tested
// without a database.
type Deps struct {
	OpenSink func(ctx context.Context, cfg sink.Config) (sink.Sink, error)
	Ingest   func(ctx context.Context, path string, opts ingest.Options) (ingest.Summary, error)
}

func defaultDeps() Deps {
	return Deps{
		OpenSink: sink.Open,
		Ingest:   ingest.Run,
	}
}

// errInvalidConfig is returned after the validation issues were printed.
var errInvalidConfig = errors.New("invalid configuration")

func newRootCommand(stdout, stderr io.Writer, deps Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geoimport [flags] FILE",
		Short: "Load a GeoLite2 City CSV file into a database",
		Long: `geoimport reads a GeoLite2 City blocks or locations CSV file in fixed-size
chunks and hands every record to a pool of workers, each with its own database
connection. The file kind is detected from its header line.

Every flag can also be set through a GEOIMPORT_* environment variable
(e.g. GEOIMPORT_CHUNK_SIZE) or a --config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)
			if err := setAllConfig(v, cmd.Flags(), config.EnvPrefix); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			return run(cmd.Context(), config.FromViper(v, args[0]), stdout, stderr, deps)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringP(config.KeyDBName, "D", "", "database name on localhost")
	flags.StringP(config.KeyURL, "U", "", "full connection string or URI")
	flags.IntP(config.KeyWorkers, "P", 0, "number of workers, 1-999 (default: based on file size)")
	flags.String(config.KeySink, "postgres", "destination: "+strings.Join(sink.Kinds(), ", "))
	flags.Int(config.KeyChunkSize, ingest.DefaultChunkSize, "per-worker read buffer in bytes")
	flags.Duration(config.KeyDispatchTimeout, 0, "timeout for a single sink call (0 disables)")
	flags.Uint(config.KeyConnectAttempts, 3, "connection attempts per worker")
	flags.Bool(config.KeyBootstrap, false, "create destination tables and functions before loading")
	flags.Bool(config.KeyNormalizeUnicode, false, "NFC-normalize location names")
	flags.String(config.KeyMetricsBackend, "none", "metrics backend: none, pushgateway, datadog")
	flags.String(config.KeyPushgatewayURL, "http://localhost:9091", "Pushgateway base URL")
	flags.String(config.KeyStatsdAddr, "127.0.0.1:8125", "DogStatsD address")
	flags.String(config.KeyJob, "geoimport", "job label attached to metrics")
	flags.String(config.KeyLogFormat, "text", "log format: text or json")
	flags.BoolP(config.KeyVerbose, "v", false, "enable debug logs")
	flags.String("config", "", "configuration file (yaml, json or toml)")
	cmd.MarkFlagsMutuallyExclusive(config.KeyDBName, config.KeyURL)

	return cmd
}

// setAllConfig binds flags, GEOIMPORT_* environment variables and an optional
// config file into v. Precedence is flag, environment, file, default.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet, envPrefix string) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if c := v.GetString("config"); c != "" {
		v.SetConfigFile(c)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read configuration file %q: %w", c, err)
		}
	}
	return nil
}

func setupLogging(cfg config.Config, w io.Writer) {
	log.SetOutput(w)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// setupMetrics installs the configured backend. The returned func flushes it.
// A backend that cannot be created is logged and left as the nop backend.
func setupMetrics(m config.Metrics) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch m.Backend {
	case "pushgateway":
		b, err = prompush.NewBackend(m.Job, m.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{Addr: m.StatsdAddr})
	default:
		log.Debugf("metrics: disabled (backend=%q)", m.Backend)
		return func() {}
	}
	if err != nil {
		log.WithError(err).Warn("metrics: backend unavailable; using nop")
		return func() {}
	}

	log.WithFields(log.Fields{"backend": m.Backend, "job": m.Job}).Info("metrics: enabled")
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.WithError(err).Warn("metrics: flush failed")
		}
	}
}

// bootstrap creates the destination objects through a dedicated connection.
func bootstrap(ctx context.Context, deps Deps, cfg sink.Config) error {
	s, err := deps.OpenSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(context.WithoutCancel(ctx)); err != nil {
			log.WithError(err).Warn("bootstrap: close failed")
		}
	}()

	b, ok := s.(sink.Bootstrapper)
	if !ok {
		log.WithField("sink", cfg.Kind).Warn("bootstrap: sink has nothing to create")
		return nil
	}
	if err := b.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap %s: %w", cfg.Kind, err)
	}
	log.WithField("sink", cfg.Kind).Info("bootstrap: destination ready")
	return nil
}

func run(ctx context.Context, cfg config.Config, stdout, stderr io.Writer, deps Deps) error {
	setupLogging(cfg, stderr)

	if _, err := file.NewLocal(cfg.File).Stat(); err != nil {
		return err
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return errInvalidConfig
	}

	sinkCfg, err := cfg.SinkConfig()
	if err != nil {
		return err
	}

	flush := setupMetrics(cfg.Metrics)
	defer flush()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Bootstrap {
		if err := bootstrap(ctx, deps, sinkCfg); err != nil {
			return err
		}
	}

	var before checksum.Sum
	if cfg.Sink == "checksum" {
		before = checksum.Default.Snapshot()
	}

	sum, err := deps.Ingest(ctx, cfg.File, ingest.Options{
		Workers:          cfg.Workers,
		ChunkSize:        cfg.ChunkSize,
		DispatchTimeout:  cfg.DispatchTimeout,
		NormalizeUnicode: cfg.NormalizeUnicode,
		Job:              cfg.Metrics.Job,
		OpenSink: func(ctx context.Context, worker int) (sink.Sink, error) {
			log.WithField("worker", worker).Debug("sink: connecting")
			return deps.OpenSink(ctx, sinkCfg)
		},
	})
	report(stdout, cfg, sum, err)
	if err != nil {
		return err
	}

	if cfg.Sink == "checksum" {
		after := checksum.Default.Snapshot()
		fmt.Fprintf(stdout, "checksum: %016x locations=%d ip_blocks=%d\n",
			after.Digest-before.Digest, after.Locations-before.Locations, after.IPBlocks-before.IPBlocks)
	}
	return nil
}

func report(w io.Writer, cfg config.Config, sum ingest.Summary, err error) {
	kind := "records"
	if sum.Schema != nil {
		kind = sum.Schema.Kind.String() + " records"
	}
	status := "loaded"
	if err != nil {
		status = "aborted after"
	}
	fmt.Fprintf(w, "%s %s %s (%s skipped) from %s [%s] in %s with %d workers\n",
		status,
		humanize.Comma(sum.Processed),
		kind,
		humanize.Comma(sum.Skipped),
		cfg.File,
		humanize.IBytes(uint64(sum.Size)),
		sum.Elapsed.Truncate(time.Millisecond),
		sum.Workers,
	)
}
