package postgres

import (
	"context"
	"database/sql"
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoimport/internal/sink"
)

type execCall struct {
	sql  string
	args []any
}

type fakeConn struct {
	calls  []execCall
	err    error
	closed bool
}

func (f *fakeConn) Exec(_ context.Context, q string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: q, args: args})
	return pgconn.CommandTag{}, f.err
}

func (f *fakeConn) Close(context.Context) error {
	f.closed = true
	return nil
}

func ns(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

func TestAddLocation_ArgumentOrder(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{}
	s := &Sink{conn: fc}
	loc := sink.Location{
		GeonameID:           3333231,
		ContinentCode:       ns("EU"),
		CityName:            ns("Glasgow"),
		CountryISOCode:      ns("GB"),
		CountryName:         ns("United Kingdom"),
		Subdivision1ISOCode: ns("SCT"),
		Subdivision1Name:    ns("Scotland"),
		Subdivision2ISOCode: ns("GLG"),
		Subdivision2Name:    ns("Glasgow City"),
	}
	require.NoError(t, s.AddLocation(context.Background(), loc))

	require.Len(t, fc.calls, 1)
	assert.Equal(t, addLocationSQL, fc.calls[0].sql)
	assert.Equal(t, []any{
		int64(3333231), ns("EU"), ns("Glasgow"), ns("GB"), ns("United Kingdom"),
		ns("SCT"), ns("Scotland"), ns("GLG"), ns("Glasgow City"),
	}, fc.calls[0].args)
}

func TestAddIPBlock(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{}
	s := &Sink{conn: fc}
	blk := sink.IPBlock{Network: netip.MustParsePrefix("8.8.8.0/24"), GeonameID: 12345}
	require.NoError(t, s.AddIPBlock(context.Background(), blk))

	require.Len(t, fc.calls, 1)
	assert.Equal(t, addIPBlockSQL, fc.calls[0].sql)
	assert.Equal(t, []any{blk.Network, int64(12345), sql.NullString{}}, fc.calls[0].args)
}

func TestErrorsCarryServerDetail(t *testing.T) {
	t.Parallel()

	pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key", Detail: "Key (network)=(1.0.0.0/24) already exists."}
	s := &Sink{conn: &fakeConn{err: pgErr}}

	err := s.AddIPBlock(context.Background(), sink.IPBlock{Network: netip.MustParsePrefix("1.0.0.0/24"), GeonameID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	var got *pgconn.PgError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, "23505", got.Code)

	plain := errors.New("conn reset")
	s = &Sink{conn: &fakeConn{err: plain}}
	err = s.AddLocation(context.Background(), sink.Location{GeonameID: 1})
	require.ErrorIs(t, err, plain)
	assert.Contains(t, err.Error(), "add_geoname_location")
}

func TestBootstrap(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{}
	s := &Sink{conn: fc}
	require.NoError(t, s.Bootstrap(context.Background()))
	require.Len(t, fc.calls, len(bootstrapSQL))
	assert.True(t, strings.Contains(fc.calls[2].sql, "FUNCTION add_geoname_location"))
	assert.True(t, strings.Contains(fc.calls[3].sql, "FUNCTION add_geoip"))
}

func TestRegisteredFactoryUsesConnectSeam(t *testing.T) {
	fc := &fakeConn{}
	orig := connect
	connect = func(_ context.Context, dsn string) (pgConnLike, error) {
		assert.Equal(t, "host=localhost dbname=geo", dsn)
		return fc, nil
	}
	t.Cleanup(func() { connect = orig })

	s, err := sink.Open(context.Background(), sink.Config{Kind: "postgres", DSN: "host=localhost dbname=geo"})
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))
	assert.True(t, fc.closed)
}

func TestDatabaseDSN(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"geo":     "host=localhost dbname=geo",
		"my db":   `host=localhost dbname='my db'`,
		`o'brien`: `host=localhost dbname='o\'brien'`,
	}
	for name, want := range cases {
		got, err := sink.DatabaseDSN("postgres", name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
