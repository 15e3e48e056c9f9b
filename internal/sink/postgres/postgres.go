// Package postgres writes records through the add_geoname_location and
// add_geoip server functions over a single pgx connection per worker.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"geoimport/internal/sink"
)

const (
	addLocationSQL = "SELECT add_geoname_location($1::INT4,$2,$3,$4,$5,$6,$7,$8,$9)"
	addIPBlockSQL  = "SELECT add_geoip($1::inet,$2,$3)"
)

// pgConnLike is the subset of *pgx.Conn the sink uses.
type pgConnLike interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close(ctx context.Context) error
}

// connect is a test seam.
var connect = func(ctx context.Context, dsn string) (pgConnLike, error) {
	return pgx.Connect(ctx, dsn)
}

// Sink is a Postgres-backed sink.Sink. It is not safe for concurrent use.
type Sink struct {
	conn pgConnLike
}

var (
	_ sink.Sink         = (*Sink)(nil)
	_ sink.Bootstrapper = (*Sink)(nil)
)

// New connects to dsn, a libpq keyword/value string or a postgres:// URL.
func New(ctx context.Context, dsn string) (*Sink, error) {
	c, err := connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Sink{conn: c}, nil
}

func init() {
	sink.Register("postgres", func(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
		return New(ctx, cfg.DSN)
	})
	sink.RegisterDSN("postgres", func(dbname string) string {
		return "host=localhost dbname=" + quoteConnValue(dbname)
	})
}

// quoteConnValue quotes a keyword/value connection string value when needed.
func quoteConnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// AddLocation calls add_geoname_location.
func (s *Sink) AddLocation(ctx context.Context, l sink.Location) error {
	_, err := s.conn.Exec(ctx, addLocationSQL,
		l.GeonameID,
		l.ContinentCode,
		l.CityName,
		l.CountryISOCode,
		l.CountryName,
		l.Subdivision1ISOCode,
		l.Subdivision1Name,
		l.Subdivision2ISOCode,
		l.Subdivision2Name,
	)
	if err != nil {
		return describe("add_geoname_location", err)
	}
	return nil
}

// AddIPBlock calls add_geoip.
func (s *Sink) AddIPBlock(ctx context.Context, b sink.IPBlock) error {
	if _, err := s.conn.Exec(ctx, addIPBlockSQL, b.Network, b.GeonameID, b.PostalCode); err != nil {
		return describe("add_geoip", err)
	}
	return nil
}

// Bootstrap creates the destination tables and functions if missing.
func (s *Sink) Bootstrap(ctx context.Context) error {
	for _, stmt := range bootstrapSQL {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return describe("bootstrap", err)
		}
	}
	return nil
}

// Close closes the connection.
func (s *Sink) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// describe adds the server's detail and hint, which PgError.Error omits.
func describe(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := op
		if pgErr.Detail != "" {
			msg += " (detail: " + pgErr.Detail + ")"
		}
		if pgErr.Hint != "" {
			msg += " (hint: " + pgErr.Hint + ")"
		}
		return fmt.Errorf("postgres: %s: %w", msg, err)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
