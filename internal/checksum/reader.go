package checksum

import (
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Reader is the inbound twin of Writer: it hashes every byte handed to the
// caller. It implements io.ByteReader so decompressors consume exactly the
// bytes they need and never read ahead of a compressed member.
type Reader struct {
	mu  sync.Mutex
	r   io.Reader
	br  io.ByteReader // nil when r has no ReadByte of its own
	one [1]byte
	h   *xxhash.Digest
	n   int64
}

// NewReader wraps r. The source is never buffered: when r is not an
// io.ByteReader, ReadByte issues a one-byte Read, so nothing past the last
// byte the caller asked for is taken from r.
func NewReader(r io.Reader) *Reader {
	br, _ := r.(io.ByteReader)
	return &Reader{r: r, br: br, h: xxhash.New()}
}

func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.r.Read(p)
	r.h.Write(p[:n])
	r.n += int64(n)
	return n, err
}

func (r *Reader) ReadByte() (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b byte
	if r.br != nil {
		var err error
		if b, err = r.br.ReadByte(); err != nil {
			return 0, err
		}
	} else {
		if _, err := io.ReadFull(r.r, r.one[:]); err != nil {
			return 0, err
		}
		b = r.one[0]
	}
	r.h.Write([]byte{b})
	r.n++
	return b, nil
}

// Sum64 returns the digest of every byte read so far.
func (r *Reader) Sum64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.h.Sum64()
}

// Count returns the number of bytes read so far.
func (r *Reader) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
