package file

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalOpen(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		prepare     func(t *testing.T) string
		cancel      bool
		wantErrIs   error
		wantContent string
	}{
		{
			name: "success_reads_content",
			prepare: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "data.csv")
				require.NoError(t, os.WriteFile(p, []byte("hello\nworld"), 0o644))
				return p
			},
			wantContent: "hello\nworld",
		},
		{
			name: "missing_file",
			prepare: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing.csv")
			},
			wantErrIs: os.ErrNotExist,
		},
		{
			name: "directory_is_rejected",
			prepare: func(t *testing.T) string {
				return t.TempDir()
			},
			wantErrIs: ErrNotRegular,
		},
		{
			name: "pre_canceled_context_short_circuits",
			prepare: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "data.csv")
				require.NoError(t, os.WriteFile(p, []byte("ignored"), 0o644))
				return p
			},
			cancel:    true,
			wantErrIs: context.Canceled,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tc.cancel {
				cancel()
			}

			f, err := NewLocal(tc.prepare(t)).Open(ctx)
			if tc.wantErrIs != nil {
				require.ErrorIs(t, err, tc.wantErrIs)
				return
			}
			require.NoError(t, err)
			defer f.Close()

			assert.EqualValues(t, len(tc.wantContent), f.Size())
			buf := make([]byte, f.Size())
			n, err := f.ReadAt(buf, 0)
			if err != nil {
				require.ErrorIs(t, err, io.EOF)
			}
			assert.Equal(t, tc.wantContent, string(buf[:n]))
		})
	}
}

func TestLocalStat(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "x.csv")
	require.NoError(t, os.WriteFile(p, []byte("abc"), 0o600))

	l := NewLocal(p)
	fi, err := l.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 3, fi.Size())
	assert.Equal(t, p, l.Path())
}
