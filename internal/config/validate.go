package config

import (
	"fmt"
	"strings"

	"geoimport/internal/sink"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block the run.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path names the offending key.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements error so an Issue can be returned on its own.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// connectionless sinks need neither --dbname nor --url.
var connectionless = map[string]bool{"checksum": true}

// Validate checks cfg without touching the file system or the network.
func Validate(cfg Config) []Issue {
	var issues []Issue
	issues = append(issues, validateInput(cfg)...)
	issues = append(issues, validateSink(cfg)...)
	issues = append(issues, validateRuntime(cfg)...)
	issues = append(issues, validateMetrics(cfg.Metrics)...)
	issues = append(issues, validateLogging(cfg)...)
	return issues
}

func validateInput(cfg Config) []Issue {
	if strings.TrimSpace(cfg.File) == "" {
		return []Issue{{
			Severity: SeverityError,
			Path:     "file",
			Message:  "an input file is required",
		}}
	}
	return nil
}

func validateSink(cfg Config) []Issue {
	var issues []Issue

	if !sink.Registered(cfg.Sink) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     KeySink,
			Message:  fmt.Sprintf("unknown sink %q; available: %s", cfg.Sink, strings.Join(sink.Kinds(), ", ")),
		})
		return issues
	}

	switch {
	case cfg.DBName != "" && cfg.URL != "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     KeyDBName + "," + KeyURL,
			Message:  "--dbname and --url are mutually exclusive",
		})
	case cfg.DBName == "" && cfg.URL == "" && !connectionless[cfg.Sink]:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     KeyDBName + "," + KeyURL,
			Message:  fmt.Sprintf("the %s sink needs --dbname or --url", cfg.Sink),
		})
	case (cfg.DBName != "" || cfg.URL != "") && connectionless[cfg.Sink]:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     KeyDBName + "," + KeyURL,
			Message:  fmt.Sprintf("the %s sink ignores connection settings", cfg.Sink),
		})
	}

	if cfg.ConnectAttempts < 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     KeyConnectAttempts,
			Message:  "must be at least 1",
		})
	}
	if cfg.Bootstrap && connectionless[cfg.Sink] {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     KeyBootstrap,
			Message:  fmt.Sprintf("the %s sink has nothing to bootstrap", cfg.Sink),
		})
	}
	return issues
}

func validateRuntime(cfg Config) []Issue {
	var issues []Issue

	if cfg.Workers < 0 || cfg.Workers > MaxWorkers {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     KeyWorkers,
			Message:  fmt.Sprintf("must be between 1 and %d (0 picks the default)", MaxWorkers),
		})
	}
	if cfg.ChunkSize < MinChunkSize {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     KeyChunkSize,
			Message:  fmt.Sprintf("must be at least %d bytes", MinChunkSize),
		})
	} else if cfg.ChunkSize > 256<<20 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     KeyChunkSize,
			Message:  "every worker allocates one buffer of this size",
		})
	}
	if cfg.DispatchTimeout < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     KeyDispatchTimeout,
			Message:  "must not be negative",
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     KeyPushgatewayURL,
				Message:  "the pushgateway backend needs a URL",
			})
		}
	case "datadog":
		if strings.TrimSpace(m.StatsdAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     KeyStatsdAddr,
				Message:  "the datadog backend needs a DogStatsD address",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     KeyMetricsBackend,
			Message:  fmt.Sprintf("unknown metrics backend %q; use none, pushgateway or datadog", m.Backend),
		})
	}

	if m.Backend != "" && m.Backend != "none" && strings.TrimSpace(m.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     KeyJob,
			Message:  "job must not be empty; it labels every metric",
		})
	}
	return issues
}

func validateLogging(cfg Config) []Issue {
	switch cfg.LogFormat {
	case "", "text", "json":
		return nil
	}
	return []Issue{{
		Severity: SeverityError,
		Path:     KeyLogFormat,
		Message:  fmt.Sprintf("unknown log format %q; use text or json", cfg.LogFormat),
	}}
}
