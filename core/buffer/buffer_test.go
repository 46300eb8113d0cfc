package buffer

import (
	"bytes"
	"errors"
	"testing"
)

func checkCapacity(t *testing.T, b *Buffer) {
	t.Helper()
	if got := b.Readable() + b.Prependable() + b.Writable(); got != b.Cap() {
		t.Fatalf("readable+prependable+writable = %d, cap = %d", got, b.Cap())
	}
}

func TestBufferRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		chunks []string
	}{
		{"single", 16, []string{"hello"}},
		{"grows", 4, []string{"hello", " ", "world", "!!!!!!!!!!!!!!!!"}},
		{"exact", 10, []string{"0123456789"}},
		{"empty chunks", 8, []string{"", "a", "", "bc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.size)
			var want bytes.Buffer
			for _, c := range tt.chunks {
				b.AppendString(c)
				want.WriteString(c)
				checkCapacity(t, b)
			}
			if !bytes.Equal(b.Peek(), want.Bytes()) {
				t.Errorf("Peek() = %q, want %q", b.Peek(), want.Bytes())
			}
			if got := b.RetrieveAllString(); got != want.String() {
				t.Errorf("RetrieveAllString() = %q, want %q", got, want.String())
			}
			if b.Readable() != 0 {
				t.Errorf("expected empty buffer, readable=%d", b.Readable())
			}
			checkCapacity(t, b)
		})
	}
}

func TestBufferRetrieveInterleaved(t *testing.T) {
	b := New(8)
	var got []byte
	for i := 0; i < 50; i++ {
		b.Append([]byte{byte('a' + i%26), byte('A' + i%26)})
		checkCapacity(t, b)
		got = append(got, b.Peek()[0])
		if err := b.Retrieve(1); err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		checkCapacity(t, b)
	}
	got = append(got, b.Peek()...)

	var want []byte
	for i := 0; i < 50; i++ {
		want = append(want, byte('a'+i%26), byte('A'+i%26))
	}
	// every byte observed exactly once, in order
	if !bytes.Equal(got, want) {
		t.Errorf("observed %q\nwant     %q", got, want)
	}
}

func TestBufferRetrieveOverflow(t *testing.T) {
	b := New(8)
	b.AppendString("abc")
	if err := b.Retrieve(4); !errors.Is(err, ErrRetrieveOverflow) {
		t.Errorf("Retrieve(4) error = %v, want ErrRetrieveOverflow", err)
	}
	if err := b.Retrieve(3); err != nil {
		t.Errorf("Retrieve(3) error = %v", err)
	}
}

func TestBufferRetrieveUntil(t *testing.T) {
	b := New(16)
	b.AppendString("GET / HTTP/1.1\r\nrest")
	end := bytes.Index(b.Peek(), []byte("\r\n")) + 2
	if err := b.RetrieveUntil(end); err != nil {
		t.Fatal(err)
	}
	if got := string(b.Peek()); got != "rest" {
		t.Errorf("Peek() = %q, want %q", got, "rest")
	}
	if err := b.RetrieveUntil(5); !errors.Is(err, ErrRetrieveOverflow) {
		t.Errorf("RetrieveUntil past the end = %v, want ErrRetrieveOverflow", err)
	}
}

func TestBufferCompactsBeforeGrowing(t *testing.T) {
	b := New(10)
	b.AppendString("0123456789")
	if err := b.Retrieve(6); err != nil {
		t.Fatal(err)
	}
	// 4 readable, 6 prependable, 0 writable: appending 5 must compact, not grow
	b.AppendString("abcde")
	if b.Cap() != 10 {
		t.Errorf("cap = %d, want 10 (compaction)", b.Cap())
	}
	if b.Prependable() != 0 {
		t.Errorf("prependable = %d after compaction, want 0", b.Prependable())
	}
	if got := string(b.Peek()); got != "6789abcde" {
		t.Errorf("Peek() = %q", got)
	}
	checkCapacity(t, b)

	// now free space is categorically insufficient
	b.AppendString("0123456789")
	if b.Cap() <= 10 {
		t.Errorf("cap = %d, expected growth", b.Cap())
	}
	checkCapacity(t, b)
}

func TestEnsureWritable(t *testing.T) {
	for _, n := range []int{0, 1, 7, 8, 9, 100, 4096} {
		b := New(8)
		b.AppendString("xyz")
		_ = b.Retrieve(1)
		b.EnsureWritable(n)
		if b.Writable() < n {
			t.Errorf("EnsureWritable(%d): writable = %d", n, b.Writable())
		}
		if string(b.Peek()) != "yz" {
			t.Errorf("EnsureWritable(%d) corrupted data: %q", n, b.Peek())
		}
		checkCapacity(t, b)
	}
}

func TestRetrieveAllZeroes(t *testing.T) {
	b := New(8)
	b.AppendString("secret")
	b.RetrieveAll()
	for i, c := range b.BeginWrite() {
		if c != 0 {
			t.Fatalf("byte %d = %q after RetrieveAll", i, c)
		}
	}
}

func BenchmarkBufferAppend(b *testing.B) {
	buf := New(DefaultSize)
	chunk := []byte("GET /index.html HTTP/1.1\r\n")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf.Append(chunk)
		_ = buf.Retrieve(len(chunk))
	}
}
