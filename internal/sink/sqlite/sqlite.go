// Package sqlite writes records into a local SQLite database file. It is the
// backend used for offline extracts and for end-to-end tests; no server
// functions exist, so the upsert logic lives in the statements themselves.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"geoimport/internal/sink"
)

const (
	insertLocationSQL = `INSERT OR REPLACE INTO geoname_locations (
	geoname_id, continent_code, city_name, country_iso_code, country_name,
	subdivision_1_iso_code, subdivision_1_name, subdivision_2_iso_code, subdivision_2_name
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertIPBlockSQL = `INSERT OR REPLACE INTO geoip_blocks (network, geoname_id, postal_code) VALUES (?, ?, ?)`
)

var bootstrapSQL = []string{
	`CREATE TABLE IF NOT EXISTS geoname_locations (
	geoname_id             INTEGER PRIMARY KEY,
	continent_code         TEXT,
	city_name              TEXT,
	country_iso_code       TEXT NOT NULL,
	country_name           TEXT NOT NULL,
	subdivision_1_iso_code TEXT,
	subdivision_1_name     TEXT,
	subdivision_2_iso_code TEXT,
	subdivision_2_name     TEXT
)`,
	`CREATE TABLE IF NOT EXISTS geoip_blocks (
	network     TEXT PRIMARY KEY,
	geoname_id  INTEGER NOT NULL,
	postal_code TEXT
)`,
}

// connPragmas apply to the single pooled connection. WAL plus a busy timeout
// lets several workers, each with its own Sink, write the same file.
var connPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 10000",
}

// Sink is a SQLite-backed sink.Sink holding one connection.
type Sink struct {
	db      *sql.DB
	insLoc  *sql.Stmt
	insBlk  *sql.Stmt
	prepErr error
}

var (
	_ sink.Sink         = (*Sink)(nil)
	_ sink.Bootstrapper = (*Sink)(nil)
)

// New opens the database at dsn, which is a file path or a "file:" URI.
func New(ctx context.Context, dsn string) (*Sink, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	for _, p := range connPragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	return &Sink{db: db}, nil
}

func init() {
	sink.Register("sqlite", func(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
		return New(ctx, cfg.DSN)
	})
	// A database name is a file path.
	sink.RegisterDSN("sqlite", func(dbname string) string { return dbname })
}

// prepare builds the insert statements on first use, after any bootstrap.
func (s *Sink) prepare(ctx context.Context) error {
	if s.insLoc != nil || s.prepErr != nil {
		return s.prepErr
	}
	loc, err := s.db.PrepareContext(ctx, insertLocationSQL)
	if err != nil {
		s.prepErr = fmt.Errorf("sqlite: prepare location insert: %w", err)
		return s.prepErr
	}
	blk, err := s.db.PrepareContext(ctx, insertIPBlockSQL)
	if err != nil {
		_ = loc.Close()
		s.prepErr = fmt.Errorf("sqlite: prepare ip-block insert: %w", err)
		return s.prepErr
	}
	s.insLoc, s.insBlk = loc, blk
	return nil
}

func (s *Sink) AddLocation(ctx context.Context, l sink.Location) error {
	if err := s.prepare(ctx); err != nil {
		return err
	}
	_, err := s.insLoc.ExecContext(ctx,
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
		return fmt.Errorf("sqlite: insert location %d: %w", l.GeonameID, err)
	}
	return nil
}

func (s *Sink) AddIPBlock(ctx context.Context, b sink.IPBlock) error {
	if err := s.prepare(ctx); err != nil {
		return err
	}
	if _, err := s.insBlk.ExecContext(ctx, b.Network.String(), b.GeonameID, b.PostalCode); err != nil {
		return fmt.Errorf("sqlite: insert ip-block %s: %w", b.Network, err)
	}
	return nil
}

// Bootstrap creates the tables if missing.
func (s *Sink) Bootstrap(ctx context.Context) error {
	for _, stmt := range bootstrapSQL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: bootstrap: %w", err)
		}
	}
	return nil
}

// Close releases the statements and the connection.
func (s *Sink) Close(context.Context) error {
	if s.insLoc != nil {
		_ = s.insLoc.Close()
	}
	if s.insBlk != nil {
		_ = s.insBlk.Close()
	}
	return s.db.Close()
}
