package history

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rickgao/candled/internal/model"
)

// RowBufferSize is the fixed size of one transformed row.
const RowBufferSize = 128

// Archive row layout.
const (
	guidLen     = 36
	stampStart  = guidLen + 1
	stampLen    = 19
	bodyStart   = stampStart + stampLen + 1
	minRowLen   = bodyStart + 1 // at least the trailing separator
	lineBufSize = 4096
)

var (
	// ErrMalformedRow is returned for a row that does not have the archive row shape.
	ErrMalformedRow = errors.New("malformed candle row")

	// ErrRowTooLong is returned for a row that does not fit in RowBufferSize.
	ErrRowTooLong = errors.New("candle row too long")

	// ErrTruncatedRow is returned when the stream ends in the middle of a row.
	ErrTruncatedRow = errors.New("truncated candle row")
)

// TransformRow rewrites one archive row into dst and returns the number of
// bytes written. The line may carry its "\n" or "\r\n" terminator. The
// output is always terminated by a single "\n".
//
// A row whose output does not fit in dst fails with ErrRowTooLong.
func TransformRow(dst []byte, instrumentID int16, line []byte) (int, error) {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})

	if len(line) < minRowLen || line[guidLen] != ';' || line[bodyStart-1] != ';' || line[len(line)-1] != ';' {
		return 0, fmt.Errorf("%w: %q", ErrMalformedRow, line)
	}

	ts, err := parseStamp(line[stampStart : stampStart+stampLen])
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformedRow, line, err)
	}
	minutes, err := model.ToMinutes(ts)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformedRow, line, err)
	}

	var num [24]byte
	n, ok := put(dst, 0, strconv.AppendInt(num[:0], int64(instrumentID), 10))
	if ok {
		n, ok = put(dst, n, []byte{';'})
	}
	if ok {
		n, ok = put(dst, n, strconv.AppendInt(num[:0], int64(minutes), 10))
	}
	if ok {
		n, ok = put(dst, n, line[bodyStart-1:len(line)-1])
	}
	if ok {
		n, ok = put(dst, n, []byte{'\n'})
	}
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrRowTooLong, line)
	}
	return n, nil
}

func put(dst []byte, n int, src []byte) (int, bool) {
	if len(dst)-n < len(src) {
		return n, false
	}
	return n + copy(dst[n:], src), true
}

// parseStamp parses yyyy-mm-ddThh:mm:ss as UTC without allocating.
func parseStamp(b []byte) (time.Time, error) {
	if len(b) != stampLen || b[4] != '-' || b[7] != '-' || b[10] != 'T' || b[13] != ':' || b[16] != ':' {
		return time.Time{}, errors.New("bad timestamp layout")
	}

	var f [6]int
	for i, span := range [6][2]int{{0, 4}, {5, 7}, {8, 10}, {11, 13}, {14, 16}, {17, 19}} {
		for _, c := range b[span[0]:span[1]] {
			if c < '0' || c > '9' {
				return time.Time{}, errors.New("bad timestamp digit")
			}
			f[i] = f[i]*10 + int(c-'0')
		}
	}

	t := time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], 0, time.UTC)
	if t.Month() != time.Month(f[1]) || t.Day() != f[2] || t.Hour() != f[3] || t.Minute() != f[4] || t.Second() != f[5] {
		return time.Time{}, errors.New("timestamp out of range")
	}
	return t, nil
}

// CandleReader is an io.Reader that yields transformed rows for one
// instrument from a stream of archive rows. Empty lines are skipped.
type CandleReader struct {
	src          *bufio.Reader
	instrumentID int16
	buf          [RowBufferSize]byte
	pending      []byte
	rows         int64
	err          error
}

// NewCandleReader wraps r, a stream of archive rows.
func NewCandleReader(r io.Reader, instrumentID int16) *CandleReader {
	return &CandleReader{
		src:          bufio.NewReaderSize(r, lineBufSize),
		instrumentID: instrumentID,
	}
}

// Rows returns the number of rows transformed so far.
func (r *CandleReader) Rows() int64 {
	return r.rows
}

// Read implements io.Reader.
func (r *CandleReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.pending) == 0 {
			if r.err != nil {
				break
			}
			r.next()
			continue
		}
		c := copy(p[n:], r.pending)
		r.pending = r.pending[c:]
		n += c
	}
	if n > 0 {
		return n, nil
	}
	return 0, r.err
}

// next fills pending with the next transformed row or sets err.
func (r *CandleReader) next() {
	line, err := r.src.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		r.err = fmt.Errorf("%w: no line end within %d bytes", ErrRowTooLong, lineBufSize)
		return
	case err == io.EOF:
		if len(bytes.TrimSpace(line)) > 0 {
			r.transform(line, ErrTruncatedRow)
		}
		if r.err == nil {
			r.err = io.EOF
		}
		return
	case err != nil:
		r.err = err
		return
	}

	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	r.transform(line, nil)
}

func (r *CandleReader) transform(line []byte, wrap error) {
	n, err := TransformRow(r.buf[:], r.instrumentID, line)
	if err != nil {
		if wrap != nil {
			err = fmt.Errorf("%w: %w", wrap, err)
		}
		r.err = err
		return
	}
	r.pending = r.buf[:n]
	r.rows++
}
