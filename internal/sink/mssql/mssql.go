// Package mssql writes records to Microsoft SQL Server through the
// add_geoname_location and add_geoip stored procedures.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	mssqldb "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"geoimport/internal/sink"
)

const (
	addLocationSQL = "EXEC add_geoname_location @p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8, @p9"
	addIPBlockSQL  = "EXEC add_geoip @p1, @p2, @p3"
)

// sqlDBCore is the subset of *sql.DB the sink uses.
type sqlDBCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
	Close() error
}

// openDB is a test seam.
var openDB = func(dsn string) (sqlDBCore, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Sink is an MSSQL-backed sink.Sink.
type Sink struct {
	db sqlDBCore
}

var (
	_ sink.Sink         = (*Sink)(nil)
	_ sink.Bootstrapper = (*Sink)(nil)
)

// New validates dsn, opens a single-connection pool and pings it.
func New(ctx context.Context, dsn string) (*Sink, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Sink{db: db}, nil
}

func init() {
	sink.Register("mssql", func(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
		return New(ctx, cfg.DSN)
	})
	sink.RegisterDSN("mssql", func(dbname string) string {
		u := url.URL{Scheme: "sqlserver", Host: "localhost", RawQuery: url.Values{"database": {dbname}}.Encode()}
		return u.String()
	})
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

// describe adds the server error number, which identifies the failure class
// (e.g. 2627 for a key violation).
func describe(op string, err error) error {
	var me mssqldb.Error
	if errors.As(err, &me) {
		return fmt.Errorf("mssql: %s (error %d, procedure %q line %d): %w", op, me.Number, me.ProcName, me.LineNo, err)
	}
	return fmt.Errorf("mssql: %s: %w", op, err)
}
