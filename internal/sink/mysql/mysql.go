// Package mysql writes records to MySQL or MariaDB through the
// add_geoname_location and add_geoip stored procedures.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"

	"geoimport/internal/sink"
)

const (
	addLocationSQL = "CALL add_geoname_location(?, ?, ?, ?, ?, ?, ?, ?, ?)"
	addIPBlockSQL  = "CALL add_geoip(?, ?, ?)"
)

type sqlDBCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
	Close() error
}

// openDB is a test seam.
var openDB = func(cfg *gomysql.Config) (sqlDBCore, error) {
	c, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(c)
	db.SetMaxOpenConns(1)
	return db, nil
}

// Sink is a MySQL-backed sink.Sink.
type Sink struct {
	db sqlDBCore
}

var (
	_ sink.Sink         = (*Sink)(nil)
	_ sink.Bootstrapper = (*Sink)(nil)
)

// New parses dsn (go-sql-driver format, e.g. "user:pw@tcp(host:3306)/geo"),
// opens a single-connection pool and pings it.
func New(ctx context.Context, dsn string) (*Sink, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	if cfg.DBName == "" {
		return nil, fmt.Errorf("mysql dsn: no database selected")
	}
	// Names arrive as UTF-8 text.
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	if _, ok := cfg.Params["charset"]; !ok {
		cfg.Params["charset"] = "utf8mb4"
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return &Sink{db: db}, nil
}

// localDSN addresses dbname on the default local server as the current user.
func localDSN(dbname string) string {
	cfg := gomysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = "localhost:3306"
	cfg.DBName = dbname
	return cfg.FormatDSN()
}

func init() {
	sink.Register("mysql", func(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
		return New(ctx, cfg.DSN)
	})
	sink.RegisterDSN("mysql", localDSN)
}

func (s *Sink) AddLocation(ctx context.Context, l sink.Location) error {
	_, err := s.db.ExecContext(ctx, addLocationSQL,
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

func (s *Sink) AddIPBlock(ctx context.Context, b sink.IPBlock) error {
	if _, err := s.db.ExecContext(ctx, addIPBlockSQL, b.Network.String(), b.GeonameID, b.PostalCode); err != nil {
		return describe("add_geoip", err)
	}
	return nil
}

// Bootstrap creates the tables and procedures if missing.
func (s *Sink) Bootstrap(ctx context.Context) error {
	for _, stmt := range bootstrapSQL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return describe("bootstrap", err)
		}
	}
	return nil
}

func (s *Sink) Close(context.Context) error {
	return s.db.Close()
}

func describe(op string, err error) error {
	var me *gomysql.MySQLError
	if errors.As(err, &me) {
		return fmt.Errorf("mysql: %s (error %d, state %s): %w", op, me.Number, string(me.SQLState[:]), err)
	}
	return fmt.Errorf("mysql: %s: %w", op, err)
}
