package mssql

import (
	"context"
	"database/sql"
	"errors"
	"net/netip"
	"testing"

	mssqldb "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geoimport/internal/sink"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	calls   []execCall
	err     error
	pingErr error
	closed  bool
}

func (f *fakeDB) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{q, args})
	return nil, f.err
}
func (f *fakeDB) PingContext(context.Context) error { return f.pingErr }
func (f *fakeDB) Close() error                      { f.closed = true; return nil }

func TestNew_RejectsBadDSN(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "sqlserver://%zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mssql dsn")
}

func TestNew_PingFailureClosesPool(t *testing.T) {
	fd := &fakeDB{pingErr: errors.New("login failed")}
	orig := openDB
	openDB = func(string) (sqlDBCore, error) { return fd, nil }
	t.Cleanup(func() { openDB = orig })

	_, err := New(context.Background(), "sqlserver://sa:pw@localhost?database=geo")
	require.ErrorContains(t, err, "login failed")
	assert.True(t, fd.closed)
}

func TestAddCalls(t *testing.T) {
	t.Parallel()

	fd := &fakeDB{}
	s := &Sink{db: fd}
	ctx := context.Background()

	require.NoError(t, s.AddLocation(ctx, sink.Location{GeonameID: 7, CountryISOCode: sql.NullString{String: "ZZ", Valid: true}}))
	require.NoError(t, s.AddIPBlock(ctx, sink.IPBlock{Network: netip.MustParsePrefix("10.0.0.0/8"), GeonameID: 7}))

	require.Len(t, fd.calls, 2)
	assert.Equal(t, addLocationSQL, fd.calls[0].query)
	assert.Len(t, fd.calls[0].args, 9)
	assert.Equal(t, int64(7), fd.calls[0].args[0])
	assert.Equal(t, addIPBlockSQL, fd.calls[1].query)
	assert.Equal(t, []any{"10.0.0.0/8", int64(7), sql.NullString{}}, fd.calls[1].args)
}

func TestErrorsCarryServerNumber(t *testing.T) {
	t.Parallel()

	srvErr := mssqldb.Error{Number: 2627, Message: "Violation of PRIMARY KEY constraint", ProcName: "add_geoip", LineNo: 5}
	s := &Sink{db: &fakeDB{err: srvErr}}

	err := s.AddIPBlock(context.Background(), sink.IPBlock{Network: netip.MustParsePrefix("10.0.0.0/8"), GeonameID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error 2627")

	var got mssqldb.Error
	require.True(t, errors.As(err, &got))
}

func TestBootstrap(t *testing.T) {
	t.Parallel()

	fd := &fakeDB{}
	require.NoError(t, (&Sink{db: fd}).Bootstrap(context.Background()))
	assert.Len(t, fd.calls, len(bootstrapSQL))
}

func TestDatabaseDSN(t *testing.T) {
	t.Parallel()

	dsn, err := sink.DatabaseDSN("mssql", "geo ip")
	require.NoError(t, err)
	assert.Equal(t, "sqlserver://localhost?database=geo+ip", dsn)
}
