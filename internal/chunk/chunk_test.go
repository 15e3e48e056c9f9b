package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBoundary(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		buf          string
		wantEnd      int
		wantExcluded int
		wantErr      error
	}{
		{name: "already_aligned", buf: "a,b\nc,d\n", wantEnd: 8},
		{name: "partial_tail", buf: "a,b\nc,d\nef", wantEnd: 8, wantExcluded: 2},
		{name: "single_terminator_at_start", buf: "\nabc", wantEnd: 1, wantExcluded: 3},
		{name: "no_terminator", buf: "abcdef", wantExcluded: 6, wantErr: ErrRecordTooLarge},
		{name: "empty", buf: ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			end, excluded, err := ResolveBoundary([]byte(tc.buf))
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.wantEnd, end)
			assert.Equal(t, tc.wantExcluded, excluded)
		})
	}
}

func TestLineReader(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
		want []string
	}{
		{name: "lf", data: "a\nb\n", want: []string{"a", "b"}},
		{name: "crlf", data: "a\r\nb\r\n", want: []string{"a", "b"}},
		{name: "no_trailing_terminator", data: "a\nb", want: []string{"a", "b"}},
		{name: "blank_line_kept", data: "a\n\nb\n", want: []string{"a", "", "b"}},
		{name: "empty_chunk", data: "", want: nil},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := NewLineReader([]byte(tc.data))
			var got []string
			for {
				line, ok := r.Next()
				if !ok {
					break
				}
				got = append(got, string(line))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLineReader_SpansAliasBuffer(t *testing.T) {
	t.Parallel()

	data := []byte("abc\ndef\n")
	r := NewLineReader(data)
	line, ok := r.Next()
	require.True(t, ok)
	line[0] = 'X'
	assert.Equal(t, "Xbc\ndef\n", string(data))

	line, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, "def", string(line))
	assert.Equal(t, 4, r.Start())

	r.Reset([]byte("z\n"))
	assert.Zero(t, r.Start())
	line, ok = r.Next()
	require.True(t, ok)
	assert.Equal(t, "z", string(line))
}

// drain acquires chunks until exhaustion and returns copies of their data.
func drain(t *testing.T, s *Source, bufSize int) []Chunk {
	t.Helper()
	buf := make([]byte, bufSize)
	var out []Chunk
	for {
		c, err := s.Acquire(buf)
		if errors.Is(err, ErrExhausted) {
			return out
		}
		require.NoError(t, err)
		out = append(out, Chunk{Data: append([]byte(nil), c.Data...), Offset: c.Offset})
	}
}

// genRecords builds n newline-terminated records of random length.
func genRecords(rng *rand.Rand, n, maxLen int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		l := 1 + rng.Intn(maxLen)
		fmt.Fprintf(&sb, "%d,", i)
		sb.WriteString(strings.Repeat("x", l))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestSource_ReconstructsPayloadForAnyChunkSize(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	header := "h1,h2\n"
	body := genRecords(rng, 400, 40)

	for _, withTrailingNL := range []bool{true, false} {
		payload := body
		if !withTrailingNL {
			payload = strings.TrimSuffix(body, "\n")
		}
		file := header + payload

		for _, size := range []int{64, 65, 97, 128, 333, 1024, 4096, len(file) + 10} {
			t.Run(fmt.Sprintf("nl=%v/buf=%d", withTrailingNL, size), func(t *testing.T) {
				src := NewSource(strings.NewReader(file), int64(len(header)), int64(len(file)))
				chunks := drain(t, src, size)

				var rebuilt bytes.Buffer
				next := int64(len(header))
				for i, c := range chunks {
					assert.Equal(t, next, c.Offset, "chunk %d offset", i)
					next += int64(len(c.Data))
					rebuilt.Write(c.Data)
					if i < len(chunks)-1 {
						assert.Equal(t, byte('\n'), c.Data[len(c.Data)-1], "chunk %d must end on a terminator", i)
					}
					assert.LessOrEqual(t, len(c.Data), size)
				}
				assert.Equal(t, payload, rebuilt.String())
				assert.Zero(t, src.Remaining())
			})
		}
	}
}

func TestSource_ConcurrentAcquireIsExactlyOnce(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	header := "hdr\n"
	payload := genRecords(rng, 2000, 60)
	file := header + payload
	src := NewSource(strings.NewReader(file), int64(len(header)), int64(len(file)))

	var (
		mu     sync.Mutex
		chunks []Chunk
		wg     sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 256)
			for {
				c, err := src.Acquire(buf)
				if err != nil {
					return
				}
				cp := Chunk{Data: append([]byte(nil), c.Data...), Offset: c.Offset}
				mu.Lock()
				chunks = append(chunks, cp)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Offset < chunks[j].Offset })
	var rebuilt bytes.Buffer
	next := int64(len(header))
	for _, c := range chunks {
		require.Equal(t, next, c.Offset, "gap or overlap")
		next += int64(len(c.Data))
		rebuilt.Write(c.Data)
	}
	assert.Equal(t, payload, rebuilt.String())
}

func TestSource_RecordTooLargeIsSticky(t *testing.T) {
	t.Parallel()

	file := "h\nshort\n" + strings.Repeat("y", 100) + "\nz\n"
	src := NewSource(strings.NewReader(file), 2, int64(len(file)))
	buf := make([]byte, 32)

	c, err := src.Acquire(buf)
	require.NoError(t, err)
	assert.Equal(t, "short\n", string(c.Data))

	_, err = src.Acquire(buf)
	require.ErrorIs(t, err, ErrRecordTooLarge)
	_, err = src.Acquire(buf)
	require.ErrorIs(t, err, ErrRecordTooLarge)
}

type failingReaderAt struct {
	good []byte
	err  error
}

func (f failingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < int64(len(f.good)) {
		n := copy(p, f.good[off:])
		return n, nil
	}
	return 0, f.err
}

type countingReaderAt struct {
	r     io.ReaderAt
	reads int
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	c.reads++
	return c.r.ReadAt(p, off)
}

func TestSource_AbortStopsReads(t *testing.T) {
	t.Parallel()

	r := &countingReaderAt{r: strings.NewReader("a\nb\nc\nd\n")}
	src := NewSource(r, 0, 8)
	var aborted atomic.Bool
	src.SetAbort(aborted.Load)
	buf := make([]byte, 4)

	_, err := src.Acquire(buf)
	require.NoError(t, err)
	require.Equal(t, 1, r.reads)

	aborted.Store(true)
	_, err = src.Acquire(buf)
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 1, r.reads, "no read may start once aborted")
	assert.EqualValues(t, 4, src.Remaining())
}

func TestSource_ReadErrorIsFatal(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk gone")
	r := failingReaderAt{good: []byte("a\nb\n"), err: boom}
	src := NewSource(r, 0, 1000)
	buf := make([]byte, 4)

	c, err := src.Acquire(buf)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(c.Data))

	_, err = src.Acquire(buf)
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrExhausted))
}

func TestSource_EmptyPayload(t *testing.T) {
	t.Parallel()

	src := NewSource(strings.NewReader("hdr\n"), 4, 4)
	_, err := src.Acquire(make([]byte, 16))
	require.ErrorIs(t, err, ErrExhausted)
}

func TestSource_ShortReadAtEOFWithoutSize(t *testing.T) {
	t.Parallel()

	// A stale size larger than the file still terminates on io.EOF.
	src := NewSource(strings.NewReader("a\nbc"), 0, 1<<20)
	c, err := src.Acquire(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, "a\nbc", string(c.Data))

	_, err = src.Acquire(make([]byte, 64))
	require.ErrorIs(t, err, ErrExhausted)
}

var _ io.ReaderAt = failingReaderAt{}
