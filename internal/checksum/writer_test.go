package checksum

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"
)

func TestWriter_ChunkingDoesNotChangeDigest(t *testing.T) {
	data := make([]byte, 300*1024)
	rand.New(rand.NewSource(1)).Read(data)
	want := Sum64(data)

	tests := []struct {
		name    string
		chunk   int
		bufSize int
	}{
		{name: "single write", chunk: len(data), bufSize: DefaultBufferSize},
		{name: "one byte at a time", chunk: 1, bufSize: 16},
		{name: "chunks straddle flushes", chunk: 7919, bufSize: 4096},
		{name: "chunks larger than buffer", chunk: 100 * 1024, bufSize: 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sink bytes.Buffer
			w := NewWriterSize(&sink, tt.bufSize)

			for off := 0; off < len(data); off += tt.chunk {
				end := min(off+tt.chunk, len(data))
				if _, err := w.Write(data[off:end]); err != nil {
					t.Fatalf("Write() error = %v", err)
				}
			}
			if err := w.Flush(); err != nil {
				t.Fatalf("Flush() error = %v", err)
			}

			if got := w.Sum64(); got != want {
				t.Errorf("Sum64() = %x, want %x", got, want)
			}
			if got := w.Count(); got != int64(len(data)) {
				t.Errorf("Count() = %d, want %d", got, len(data))
			}
			if !bytes.Equal(sink.Bytes(), data) {
				t.Error("sink content differs from written data")
			}
		})
	}
}

func TestWriter_EmptyStream(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	if got, want := w.Sum64(), Sum64(nil); got != want {
		t.Errorf("Sum64() = %x, want %x", got, want)
	}
}

// shortWriter accepts at most limit bytes in total.
type shortWriter struct {
	buf   bytes.Buffer
	limit int
}

func (s *shortWriter) Write(p []byte) (int, error) {
	room := s.limit - s.buf.Len()
	if room <= 0 {
		return 0, errors.New("sink full")
	}
	if len(p) > room {
		s.buf.Write(p[:room])
		return room, errors.New("sink full")
	}
	return s.buf.Write(p)
}

func TestWriter_HashesOnlyAcceptedBytes(t *testing.T) {
	sink := &shortWriter{limit: 10}
	w := NewWriterSize(sink, 16)

	// The buffer accepts all 12 bytes; the sink only fails on flush.
	if _, err := w.Write([]byte("hello world!")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Flush(); err == nil {
		t.Fatal("Flush() expected error from full sink")
	}
	if got, want := w.Sum64(), Sum64([]byte("hello world!")); got != want {
		t.Errorf("Sum64() = %x, want %x", got, want)
	}

	// After a sink error bufio refuses further bytes, so nothing more is hashed.
	n, err := w.Write([]byte("more"))
	if err == nil {
		t.Fatal("Write() after sink error expected error")
	}
	if n != 0 {
		t.Errorf("Write() n = %d, want 0", n)
	}
	if got := w.Count(); got != 12 {
		t.Errorf("Count() = %d, want 12", got)
	}
}

func TestWriter_ConcurrentWritersKeepDigestConsistent(t *testing.T) {
	var sink bytes.Buffer
	w := NewWriterSize(&sink, 64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			chunk := bytes.Repeat([]byte{b}, 33)
			for j := 0; j < 50; j++ {
				w.Write(chunk)
			}
		}(byte('a' + i))
	}
	wg.Wait()
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	// Whatever the interleaving, the digest must match the bytes that reached the sink.
	if got, want := w.Sum64(), Sum64(sink.Bytes()); got != want {
		t.Errorf("Sum64() = %x, want digest of sink %x", got, want)
	}
}

func TestHex(t *testing.T) {
	if got := Hex(0xab); got != "00000000000000ab" {
		t.Errorf("Hex() = %q", got)
	}
}
