// Package config holds the importer's run configuration and the rules that
// validate it.
//
// Values come from command-line flags, GEOIMPORT_* environment variables and
// an optional config file, merged by viper in that order of precedence. The
// result is copied into a plain Config so the rest of the program never
// touches viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"geoimport/internal/ingest"
	"geoimport/internal/sink"
)

// Keys shared by flags, environment variables and config files.
const (
	KeyDBName           = "dbname"
	KeyURL              = "url"
	KeyWorkers          = "workers"
	KeySink             = "sink"
	KeyChunkSize        = "chunk-size"
	KeyDispatchTimeout  = "dispatch-timeout"
	KeyConnectAttempts  = "connect-attempts"
	KeyBootstrap        = "bootstrap"
	KeyNormalizeUnicode = "normalize-unicode"
	KeyMetricsBackend   = "metrics-backend"
	KeyPushgatewayURL   = "pushgateway-url"
	KeyStatsdAddr       = "statsd-addr"
	KeyJob              = "job"
	KeyLogFormat        = "log-format"
	KeyVerbose          = "verbose"
)

// EnvPrefix prefixes every environment variable, e.g. GEOIMPORT_DBNAME.
const EnvPrefix = "GEOIMPORT"

const (
	// MinChunkSize is the smallest accepted chunk buffer.
	MinChunkSize = 4 << 10
	// MaxWorkers bounds an explicit worker request.
	MaxWorkers = 999
)

// Metrics selects and configures the metrics backend.
type Metrics struct {
	Backend        string
	PushgatewayURL string
	StatsdAddr     string
	Job            string
}

// Config is one run's configuration.
type Config struct {
	// File is the CSV to load.
	File string

	// DBName names a database on localhost; URL is a full connection string.
	// At most one is set.
	DBName string
	URL    string

	Sink             string
	Workers          int
	ChunkSize        int
	DispatchTimeout  time.Duration
	ConnectAttempts  uint
	Bootstrap        bool
	NormalizeUnicode bool

	Metrics Metrics

	LogFormat string
	Verbose   bool
}

// SetDefaults installs the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeySink, "postgres")
	v.SetDefault(KeyWorkers, 0)
	v.SetDefault(KeyChunkSize, ingest.DefaultChunkSize)
	v.SetDefault(KeyDispatchTimeout, time.Duration(0))
	v.SetDefault(KeyConnectAttempts, 3)
	v.SetDefault(KeyMetricsBackend, "none")
	v.SetDefault(KeyPushgatewayURL, "http://localhost:9091")
	v.SetDefault(KeyStatsdAddr, "127.0.0.1:8125")
	v.SetDefault(KeyJob, "geoimport")
	v.SetDefault(KeyLogFormat, "text")
}

// FromViper copies the merged settings out of v.
func FromViper(v *viper.Viper, file string) Config {
	return Config{
		File:             file,
		DBName:           strings.TrimSpace(v.GetString(KeyDBName)),
		URL:              strings.TrimSpace(v.GetString(KeyURL)),
		Sink:             strings.ToLower(strings.TrimSpace(v.GetString(KeySink))),
		Workers:          v.GetInt(KeyWorkers),
		ChunkSize:        v.GetInt(KeyChunkSize),
		DispatchTimeout:  v.GetDuration(KeyDispatchTimeout),
		ConnectAttempts:  v.GetUint(KeyConnectAttempts),
		Bootstrap:        v.GetBool(KeyBootstrap),
		NormalizeUnicode: v.GetBool(KeyNormalizeUnicode),
		Metrics: Metrics{
			Backend:        strings.ToLower(strings.TrimSpace(v.GetString(KeyMetricsBackend))),
			PushgatewayURL: v.GetString(KeyPushgatewayURL),
			StatsdAddr:     v.GetString(KeyStatsdAddr),
			Job:            v.GetString(KeyJob),
		},
		LogFormat: strings.ToLower(v.GetString(KeyLogFormat)),
		Verbose:   v.GetBool(KeyVerbose),
	}
}

// DSN returns the connection string for the configured sink: URL verbatim,
// or DBName expanded by the sink's localhost form. It is empty for sinks that
// need no connection.
func (c Config) DSN() (string, error) {
	switch {
	case c.URL != "":
		return c.URL, nil
	case c.DBName != "":
		dsn, err := sink.DatabaseDSN(c.Sink, c.DBName)
		if err != nil {
			return "", fmt.Errorf("--%s: %w", KeyDBName, err)
		}
		return dsn, nil
	default:
		return "", nil
	}
}

// SinkConfig builds the sink.Config for workers.
func (c Config) SinkConfig() (sink.Config, error) {
	dsn, err := c.DSN()
	if err != nil {
		return sink.Config{}, err
	}
	return sink.Config{
		Kind:            c.Sink,
		DSN:             dsn,
		ConnectAttempts: c.ConnectAttempts,
	}, nil
}
