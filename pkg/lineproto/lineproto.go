// Package lineproto implements the newline-delimited text framing used on
// the transcript side of the wire protocol.
//
// A message is a single line of UTF-8 text terminated by '\n'. The framing
// performs no escaping: a line must not itself contain the terminator. Both
// directions are buffered, so readers tolerate messages that arrive split
// across arbitrary network reads and writers coalesce a line and its
// terminator into one write.
//
// Usage:
//
//	r := lineproto.NewReader(conn)
//	w := lineproto.NewWriter(conn)
//	if err := w.WriteLine("0 1720 Takhle to je"); err != nil { … }
//	line, err := r.ReadLine()
package lineproto

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Writer frames lines onto a byte stream.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter returns a Writer that frames lines onto w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteLine writes line followed by the '\n' terminator and flushes the
// buffer, so the frame is on the wire when WriteLine returns. The line must
// not contain '\n'; the framing performs no escaping.
func (w *Writer) WriteLine(line string) error {
	if _, err := w.bw.WriteString(line); err != nil {
		return fmt.Errorf("lineproto: write line: %w", err)
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("lineproto: write terminator: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("lineproto: flush: %w", err)
	}
	return nil
}

// Reader unframes lines from a byte stream.
type Reader struct {
	br *bufio.Reader
}

// NewReader returns a Reader that unframes lines from r.
//
// When the same underlying stream also carries non-line traffic, construct
// the Reader over a shared *bufio.Reader instead (see NewReaderBuffered) so
// buffered bytes are not lost between the two read paths.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// NewReaderBuffered returns a Reader over an existing *bufio.Reader. The
// caller keeps ownership of br and may interleave its own reads with line
// reads; ordering across the two paths is the caller's responsibility.
func NewReaderBuffered(br *bufio.Reader) *Reader {
	return &Reader{br: br}
}

// ReadLine blocks until one complete line is available and returns it with
// the terminator stripped. A trailing '\r' before the terminator is also
// stripped so CRLF peers are tolerated.
//
// When the stream ends cleanly with an unterminated partial line, that
// partial line is returned with a nil error and the next call reports
// io.EOF. When the stream ends with no pending data, ReadLine returns
// ("", io.EOF).
func (r *Reader) ReadLine() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return trimTerminator(line), nil
		}
		if err == io.EOF {
			return "", io.EOF
		}
		return "", fmt.Errorf("lineproto: read line: %w", err)
	}
	return trimTerminator(line), nil
}

// Available reports whether a complete line can be returned by ReadLine
// without another read from the underlying stream.
func (r *Reader) Available() bool {
	n := r.br.Buffered()
	if n == 0 {
		return false
	}
	peek, err := r.br.Peek(n)
	if err != nil {
		return false
	}
	return bytes.IndexByte(peek, '\n') >= 0
}

func trimTerminator(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
