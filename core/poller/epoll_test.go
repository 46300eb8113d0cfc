//go:build linux

package poller

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestModes(t *testing.T) {
	cases := []struct {
		mode     int
		listenET bool
		connET   bool
	}{
		{0, false, false},
		{1, false, true},
		{2, true, false},
		{3, true, true},
		{7, true, true},
	}
	for _, c := range cases {
		listen, conn := Modes(c.mode)
		if (listen&ET != 0) != c.listenET {
			t.Errorf("mode %d: listen ET = %v", c.mode, listen&ET != 0)
		}
		if (conn&ET != 0) != c.connET {
			t.Errorf("mode %d: conn ET = %v", c.mode, conn&ET != 0)
		}
		if listen&RDHup == 0 || conn&RDHup == 0 {
			t.Errorf("mode %d: RDHUP missing", c.mode)
		}
		if conn&OneShot == 0 || listen&OneShot != 0 {
			t.Errorf("mode %d: one-shot must be set on connections only", c.mode)
		}
	}
}

func TestEpollPoller_OneShotRearm(t *testing.T) {
	p, err := NewPoller(8)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	if err := p.Add(fds[0], In|OneShot|RDHup); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatal(err)
	}

	n, err := p.Wait(1000)
	if err != nil || n != 1 {
		t.Fatalf("Wait = %d, %v; want 1 event", n, err)
	}
	if p.EventFD(0) != fds[0] || p.EventFlags(0)&In == 0 {
		t.Fatalf("unexpected event fd=%d flags=%#x", p.EventFD(0), p.EventFlags(0))
	}

	// One-shot: still readable, but disarmed until Modify.
	if n, _ := p.Wait(50); n != 0 {
		t.Fatalf("one-shot descriptor reported again without re-arm")
	}
	if err := p.Modify(fds[0], In|OneShot|RDHup); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	if n, _ := p.Wait(1000); n != 1 {
		t.Fatalf("re-armed descriptor not reported")
	}

	if err := p.Remove(fds[0]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := p.Modify(fds[0], In); err == nil {
		t.Error("Modify after Remove should fail")
	}
}

func TestEpollPoller_BadFD(t *testing.T) {
	p, err := NewPoller(0)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.Add(-1, In); err != ErrBadFD {
		t.Errorf("Add(-1) = %v, want ErrBadFD", err)
	}
	if err := p.Remove(-1); err != ErrBadFD {
		t.Errorf("Remove(-1) = %v, want ErrBadFD", err)
	}
}

func TestEpollPoller_EventIndexPanics(t *testing.T) {
	p, err := NewPoller(4)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	defer func() {
		if recover() == nil {
			t.Error("EventFD past the batch should panic")
		}
	}()
	p.EventFD(0)
}
