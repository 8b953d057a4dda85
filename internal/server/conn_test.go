package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
)

func TestConn_SendWritesFrame(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()
	c := NewConn(srv)

	got := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(client).ReadString('\n')
		got <- line
	}()

	sent, err := c.Send("0 1720 Takhle to je")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !sent {
		t.Error("Send reported a fresh line as suppressed")
	}
	if line := <-got; line != "0 1720 Takhle to je\n" {
		t.Errorf("wire frame = %q, want %q", line, "0 1720 Takhle to je\n")
	}
}

func TestConn_SendSuppressesConsecutiveDuplicate(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	c := NewConn(srv)

	got := make(chan []string, 1)
	go func() {
		br := bufio.NewReader(client)
		var lines []string
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				lines = append(lines, strings.TrimSuffix(line, "\n"))
			}
			if err != nil {
				break
			}
		}
		got <- lines
	}()

	steps := []struct {
		line     string
		wantSent bool
	}{
		{"100 200 a", true},
		{"100 200 a", false},
		{"200 300 b", true},
	}
	for i, step := range steps {
		sent, err := c.Send(step.line)
		if err != nil {
			t.Fatalf("Send #%d: %v", i, err)
		}
		if sent != step.wantSent {
			t.Errorf("Send #%d (%q) sent = %v, want %v", i, step.line, sent, step.wantSent)
		}
	}
	srv.Close()

	want := []string{"100 200 a", "200 300 b"}
	lines := <-got
	if len(lines) != len(want) {
		t.Fatalf("received %d lines %v, want %d", len(lines), lines, len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestConn_SendSurfacesPeerClose(t *testing.T) {
	client, srv := net.Pipe()
	defer srv.Close()
	c := NewConn(srv)

	client.Close()

	sent, err := c.Send("0 100 lost")
	if err == nil {
		t.Fatal("Send on closed peer returned nil error")
	}
	if sent {
		t.Error("Send reported a failed line as sent")
	}
	if !isClosed(err) {
		t.Errorf("isClosed(%v) = false, want true", err)
	}

	// The failed line was not recorded, so a later retry is not suppressed.
	if line := c.lastLine; line != "" {
		t.Errorf("lastLine after failed send = %q, want empty", line)
	}
}

func TestConn_ReceiveAudio_OneReadPerCall(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()
	c := NewConn(srv)

	go func() { client.Write(make([]byte, 100)) }()

	raw, err := c.ReceiveAudio()
	if err != nil {
		t.Fatalf("ReceiveAudio: %v", err)
	}
	if len(raw) != 100 {
		t.Errorf("read %d bytes, want 100", len(raw))
	}
}

func TestConn_ReceiveAudio_CapsPacketSize(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()
	c := NewConn(srv)

	const extra = 4464
	go func() { client.Write(make([]byte, packetSize+extra)) }()

	raw, err := c.ReceiveAudio()
	if err != nil {
		t.Fatalf("first ReceiveAudio: %v", err)
	}
	if len(raw) != packetSize {
		t.Errorf("first read = %d bytes, want %d", len(raw), packetSize)
	}

	raw, err = c.ReceiveAudio()
	if err != nil {
		t.Fatalf("second ReceiveAudio: %v", err)
	}
	if len(raw) != extra {
		t.Errorf("second read = %d bytes, want %d", len(raw), extra)
	}
}

func TestConn_ReceiveAudio_EOFOnPeerClose(t *testing.T) {
	client, srv := net.Pipe()
	defer srv.Close()
	c := NewConn(srv)

	client.Close()

	raw, err := c.ReceiveAudio()
	if len(raw) != 0 {
		t.Errorf("read %d bytes from closed peer, want 0", len(raw))
	}
	if !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestConn_ReceiveLines_DrainsBuffered(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()
	c := NewConn(srv)

	go func() { client.Write([]byte("first line\nsecond line\n")) }()

	lines, err := c.ReceiveLines()
	if err != nil {
		t.Fatalf("ReceiveLines: %v", err)
	}
	want := []string{"first line", "second line"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %v, want %d", len(lines), lines, len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestConn_ReceiveLines_EOFOnPeerClose(t *testing.T) {
	client, srv := net.Pipe()
	defer srv.Close()
	c := NewConn(srv)

	client.Close()

	lines, err := c.ReceiveLines()
	if lines != nil {
		t.Errorf("lines = %v, want nil", lines)
	}
	if !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestConn_SharedReaderKeepsBufferedBytes(t *testing.T) {
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()
	c := NewConn(srv)

	// One write carrying a line and the start of the audio stream. The bytes
	// after the terminator must not be lost to the line path.
	go func() { client.Write([]byte("hello\n\x01\x02\x03\x04")) }()

	lines, err := c.ReceiveLines()
	if err != nil {
		t.Fatalf("ReceiveLines: %v", err)
	}
	if len(lines) != 1 || lines[0] != "hello" {
		t.Fatalf("lines = %v, want [hello]", lines)
	}

	raw, err := c.ReceiveAudio()
	if err != nil {
		t.Fatalf("ReceiveAudio: %v", err)
	}
	if string(raw) != "\x01\x02\x03\x04" {
		t.Errorf("audio bytes = %q, want %q", raw, "\x01\x02\x03\x04")
	}
}

func TestIsClosed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", io.EOF, true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"net closed", net.ErrClosed, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"broken pipe", syscall.EPIPE, true},
		{"wrapped broken pipe", fmt.Errorf("lineproto: write line: %w", syscall.EPIPE), true},
		{"unrelated", errors.New("disk full"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isClosed(tc.err); got != tc.want {
				t.Errorf("isClosed(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
