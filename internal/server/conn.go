// Package server implements the streaming transcription service: a TCP
// listener that serves one client at a time, decodes the client's raw PCM
// stream, feeds it to an incremental recognition engine, and writes timed
// transcript lines back over the same connection.
package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/voxscribe/voxscribe/pkg/lineproto"
)

// packetSize is the maximum number of bytes one audio receive call reads
// from the socket.
const packetSize = 65536

// Conn wraps one accepted client socket. It owns the socket's buffered
// reader, so the line and audio receive paths share buffered bytes instead
// of losing them to each other.
//
// Send suppresses consecutive duplicate lines: re-sending the text of the
// previous line is a no-op. Downstream consumers treat a repeated line as a
// protocol violation.
//
// A Conn serves exactly one client and is not reused across connections.
type Conn struct {
	nc net.Conn
	br *bufio.Reader
	lr *lineproto.Reader
	lw *lineproto.Writer

	lastLine string
	buf      []byte
}

// NewConn wraps an accepted socket.
func NewConn(nc net.Conn) *Conn {
	br := bufio.NewReaderSize(nc, packetSize)
	return &Conn{
		nc:  nc,
		br:  br,
		lr:  lineproto.NewReaderBuffered(br),
		lw:  lineproto.NewWriter(nc),
		buf: make([]byte, packetSize),
	}
}

// Send writes one transcript line to the peer and reports whether it was
// transmitted. Sending a line textually identical to the previous one is a
// no-op returning (false, nil). The line is recorded as the previous line
// only after it was written in full.
func (c *Conn) Send(line string) (bool, error) {
	if line == c.lastLine {
		return false, nil
	}
	if err := c.lw.WriteLine(line); err != nil {
		return false, err
	}
	c.lastLine = line
	return true, nil
}

// ReceiveLines blocks until at least one complete line arrives from the
// peer, then returns it together with any further lines already buffered.
// Once the peer has shut down the stream it returns io.EOF.
func (c *Conn) ReceiveLines() ([]string, error) {
	line, err := c.lr.ReadLine()
	if err != nil {
		return nil, err
	}
	lines := []string{line}
	for c.lr.Available() {
		line, err := c.lr.ReadLine()
		if err != nil {
			break
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ReceiveAudio performs a single read of up to packetSize raw bytes from
// the socket. It blocks until data arrives and returns io.EOF once the peer
// has shut down its sending side. The returned slice aliases an internal
// buffer and is valid only until the next call.
//
// One call maps to at most one underlying read; callers that need a minimum
// amount of audio call it repeatedly.
func (c *Conn) ReceiveAudio() ([]byte, error) {
	n, err := c.br.Read(c.buf)
	if n > 0 {
		return c.buf[:n], nil
	}
	return nil, err
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// RemoteAddr returns the peer's address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// isClosed reports whether err indicates the peer or this side closed the
// connection, as opposed to a genuine transport fault. io.ErrClosedPipe is
// what in-memory pipe transports surface where TCP reports EPIPE.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
