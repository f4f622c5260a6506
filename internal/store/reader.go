package store

// reader.go wraps source streams before they reach a parser:
//
//   - a leading UTF-8 byte order mark is dropped;
//   - invalid UTF-8 bytes are replaced with '?' so the parsers and SQLite
//     only ever see valid text;
//   - bytes are counted for progress logging.
//
// All three work in constant memory.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// sanitizingReader drops a leading BOM and replaces invalid UTF-8 bytes.
type sanitizingReader struct {
	br      *bufio.Reader
	started bool
	pending []byte // encoded rune that did not fit in the caller's buffer
}

// NewSanitizingReader returns a reader yielding valid UTF-8 without a BOM.
func NewSanitizingReader(r io.Reader) io.Reader {
	return &sanitizingReader{br: bufio.NewReader(r)}
}

func (s *sanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !s.started {
		s.started = true
		if head, _ := s.br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
			s.br.Discard(len(utf8BOM))
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]

	for n < len(p) {
		r, size, err := s.br.ReadRune()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		if r == utf8.RuneError && size == 1 {
			p[n] = '?'
			n++
			continue
		}
		if n+size > len(p) {
			var buf [utf8.UTFMax]byte
			w := utf8.EncodeRune(buf[:], r)
			c := copy(p[n:], buf[:w])
			s.pending = append(s.pending[:0], buf[c:w]...)
			n += c
			break
		}
		n += utf8.EncodeRune(p[n:], r)
	}
	return n, nil
}

// CountingReader tracks bytes read for progress reporting.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // 0 when unknown
}

// NewCountingReader wraps r. total may be zero.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Progress returns the percentage read, or 0 when the total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead * 100 / r.Total)
}

// wrapSource counts raw bytes, optionally copies them to progress, and
// sanitizes the text.
func wrapSource(r io.Reader, total int64, progress io.Writer) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r, total)
	var src io.Reader = counter
	if progress != nil {
		src = io.TeeReader(counter, progress)
	}
	return NewSanitizingReader(src), counter
}
