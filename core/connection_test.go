//go:build linux

package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestConnection_AdvanceSlidesAcrossParts(t *testing.T) {
	c := newConnection(t.TempDir(), false, nil)
	c.writeBuf.AppendString("HEADER")
	c.iov[0] = c.writeBuf.Peek()
	c.iov[1] = []byte("BODYBYTES")

	c.advance(4)
	if string(c.iov[0]) != "ER" || c.writeBuf.Readable() != 2 {
		t.Fatalf("iov[0] = %q, buffered %d", c.iov[0], c.writeBuf.Readable())
	}
	c.advance(5)
	if c.iov[0] != nil || string(c.iov[1]) != "YBYTES" || c.writeBuf.Readable() != 0 {
		t.Fatalf("iov = %q / %q", c.iov[0], c.iov[1])
	}
	c.advance(6)
	if c.ToWriteBytes() != 0 {
		t.Errorf("ToWriteBytes() = %d", c.ToWriteBytes())
	}
}

func TestConnection_ProcessAndWrite(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[1])

	c := newConnection(root, false, nil)
	c.Init(fds[0], "test", 1)
	defer c.Close()

	if got := c.Process(context.Background()); got != ProcessIdle {
		t.Fatalf("Process on empty buffer = %v", got)
	}

	if _, err := unix.Write(fds[1], []byte("GET / HTTP/1.1\r\nConnection: keep-alive\r\n\r\n")); err != nil {
		t.Fatal(err)
	}
	if n, err := c.Read(); n <= 0 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	if got := c.Process(context.Background()); got != ProcessReady {
		t.Fatalf("Process = %v", got)
	}
	if !c.KeepAlive() || c.Response().FileLen() != 2 {
		t.Fatalf("keepAlive %v, file %d", c.KeepAlive(), c.Response().FileLen())
	}
	want := c.ToWriteBytes()

	if n, err := c.Write(); n <= 0 || c.ToWriteBytes() != 0 {
		t.Fatalf("Write = %d, %v; %d left", n, err, c.ToWriteBytes())
	}
	if c.Response().File() != nil {
		t.Error("mapping kept after the response was sent")
	}

	out := make([]byte, 4096)
	n, err := unix.Read(fds[1], out)
	if err != nil || n != want {
		t.Fatalf("peer read %d, %v; want %d", n, err, want)
	}
	if string(out[n-2:n]) != "hi" {
		t.Errorf("response ends with %q", out[n-2:n])
	}
}

func TestConnection_BadRequestDisablesKeepAlive(t *testing.T) {
	c := newConnection(t.TempDir(), false, nil)
	c.Init(-1, "test", 1)
	c.readBuf.AppendString("NOT HTTP\r\n\r\nleftover")

	if got := c.Process(context.Background()); got != ProcessBadRequest {
		t.Fatalf("Process = %v", got)
	}
	if c.KeepAlive() || c.Response().Code() != 400 || c.readBuf.Readable() != 0 {
		t.Errorf("keepAlive %v code %d buffered %d", c.KeepAlive(), c.Response().Code(), c.readBuf.Readable())
	}
}

func TestConnection_CloseOnce(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[1])

	c := newConnection(t.TempDir(), false, nil)
	c.Init(fds[0], "test", 1)
	if !c.Close() || c.Close() {
		t.Fatal("Close should succeed exactly once")
	}
	if !c.Closed() {
		t.Error("Closed() = false after Close")
	}
}
