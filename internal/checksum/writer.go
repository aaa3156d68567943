// Package checksum tracks a running 64-bit xxhash over every byte that passes
// through a stream, independent of buffering boundaries.
package checksum

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultBufferSize is the buffer size used by NewWriter.
const DefaultBufferSize = 64 * 1024

// Writer is a buffered writer that folds every accepted byte into a running
// xxhash64. Hashing happens at the Write call boundary, so the digest is the
// same however the underlying buffer decides to flush.
//
// Writes are serialized: forwarding to the buffer and updating the digest
// happen under one lock.
type Writer struct {
	mu sync.Mutex
	bw *bufio.Writer
	h  *xxhash.Digest
	n  int64
}

// NewWriter returns a Writer buffering into w.
func NewWriter(w io.Writer) *Writer {
	return NewWriterSize(w, DefaultBufferSize)
}

// NewWriterSize returns a Writer with a buffer of the given size.
func NewWriterSize(w io.Writer, size int) *Writer {
	return &Writer{
		bw: bufio.NewWriterSize(w, size),
		h:  xxhash.New(),
	}
}

// Write forwards p to the buffered sink, then hashes exactly the bytes the
// sink accepted.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.bw.Write(p)
	w.h.Write(p[:n])
	w.n += int64(n)
	return n, err
}

// Flush writes any buffered bytes to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bw.Flush()
}

// Sum64 returns the digest of every byte written so far.
func (w *Writer) Sum64() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.h.Sum64()
}

// Count returns the number of bytes written so far.
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Sum64 hashes p directly. It equals the Writer digest for the same bytes.
func Sum64(p []byte) uint64 {
	return xxhash.Sum64(p)
}

// Hex renders a digest as 16 lowercase hex digits.
func Hex(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
