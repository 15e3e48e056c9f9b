// Package sink defines the destination contract for ingested records and a
// small registry of concrete backends.
//
// Backends live in subpackages and register a Factory from init(). Callers
// import internal/sink/all (or the single backend they need) for its side
// effects and then call Open once per worker: every worker owns exactly one
// Sink, and a Sink is never shared between goroutines.
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	log "github.com/sirupsen/logrus"
)

// Location is one "add location" call.
type Location struct {
	GeonameID           int64
	ContinentCode       sql.NullString
	CityName            sql.NullString
	CountryISOCode      sql.NullString
	CountryName         sql.NullString
	Subdivision1ISOCode sql.NullString
	Subdivision1Name    sql.NullString
	Subdivision2ISOCode sql.NullString
	Subdivision2Name    sql.NullString
}

// IPBlock is one "add ip-block" call. GeonameID is already resolved through
// the registered/represented country fallback.
type IPBlock struct {
	Network    netip.Prefix
	GeonameID  int64
	PostalCode sql.NullString
}

// Sink receives records from a single worker. Any returned error is fatal for
// the run; implementations must not retry internally.
type Sink interface {
	AddLocation(ctx context.Context, loc Location) error
	AddIPBlock(ctx context.Context, blk IPBlock) error
	Close(ctx context.Context) error
}

// Bootstrapper is implemented by sinks that can create their destination
// objects (tables, functions) before ingestion starts.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	// Kind is the registered backend name, e.g. "postgres".
	Kind string
	// DSN is passed to the backend untouched.
	DSN string
	// ConnectAttempts is the number of connection attempts per Open. Zero
	// means one attempt.
	ConnectAttempts uint
	// ConnectDelay is the initial back-off between attempts.
	ConnectDelay time.Duration
}

// Factory opens one connection-backed Sink.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

// ErrUnknownKind is returned by Open for an unregistered backend.
var ErrUnknownKind = errors.New("sink: unknown kind")

// DSNBuilder turns a bare database name into a DSN for a server on
// localhost, the way "-D name" is interpreted for that backend.
type DSNBuilder func(dbname string) string

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
	builders  = map[string]DSNBuilder{}
)

// Register makes a backend available under kind. It panics on duplicates,
// which can only happen through a wiring mistake.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("sink: duplicate registration for " + kind)
	}
	factories[kind] = f
}

// RegisterDSN installs the database-name DSN builder for kind.
func RegisterDSN(kind string, b DSNBuilder) {
	mu.Lock()
	defer mu.Unlock()
	builders[kind] = b
}

// DatabaseDSN builds a DSN for database dbname on localhost.
func DatabaseDSN(kind, dbname string) (string, error) {
	mu.RLock()
	b, ok := builders[strings.ToLower(kind)]
	mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w %q: no database-name form", ErrUnknownKind, kind)
	}
	return b(dbname), nil
}

// Kinds lists the registered backends in lexical order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Registered reports whether kind has a factory.
func Registered(kind string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[kind]
	return ok
}

// Open connects a new Sink of cfg.Kind, retrying failed connection attempts
// with exponential back-off. Context cancellation stops the retries.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	mu.RLock()
	f, ok := factories[strings.ToLower(cfg.Kind)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownKind, cfg.Kind, strings.Join(Kinds(), ", "))
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}
	delay := cfg.ConnectDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	var s Sink
	err := retry.Do(
		func() error {
			var err error
			s, err = f(ctx, cfg)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithFields(log.Fields{"sink": cfg.Kind, "attempt": n + 1}).WithError(err).Warn("sink: connect failed, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s sink: %w", cfg.Kind, err)
	}
	return s, nil
}
