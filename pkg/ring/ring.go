// Package ring implements the lock-free single-producer/single-consumer
// float32 ring buffer that sits between the real-time audio callbacks and
// the processing worker.
package ring

import "sync/atomic"

// Buffer is a fixed-capacity circular buffer of float32 samples safe for
// exactly one concurrent writer and one concurrent reader. Capacity is
// rounded up to the next power of two so index wraparound is a bitwise
// mask instead of a modulo.
//
// The write index is published with release semantics after the copy into
// data; the read index is published with release semantics after the copy
// out of data. Each side only ever observes the opposite index, and only
// with acquire semantics. Buffer never allocates, never blocks, and never
// calls into the kernel after construction.
type Buffer struct {
	data  []float32
	mask  uint64
	write atomic.Uint64
	read  atomic.Uint64
}

// New returns a Buffer with capacity rounded up to the next power of two
// that is >= minCapacity.
func New(minCapacity int) *Buffer {
	cap := nextPowerOfTwo(minCapacity)
	return &Buffer{
		data: make([]float32, cap),
		mask: uint64(cap - 1),
	}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the buffer's fixed capacity in samples.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Readable returns the number of samples currently available to Read.
func (b *Buffer) Readable() int {
	w := b.write.Load()
	r := b.read.Load()
	return int(w - r)
}

// Writable returns the number of samples currently available to Write.
func (b *Buffer) Writable() int {
	return b.Capacity() - b.Readable()
}

// Write copies up to min(len(src), Writable()) samples into the buffer and
// returns the number actually written. The overflow tail, if any, is
// silently dropped — this is the defined backpressure-relief behavior, not
// an error.
func (b *Buffer) Write(src []float32) int {
	r := b.read.Load()
	w := b.write.Load()
	writable := b.Capacity() - int(w-r)
	n := len(src)
	if n > writable {
		n = writable
	}
	if n <= 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		b.data[(w+uint64(i))&b.mask] = src[i]
	}
	b.write.Store(w + uint64(n))
	return n
}

// Read copies up to min(len(dst), Readable()) samples out of the buffer
// and returns the number actually read. If fewer samples are available
// than requested, only the available prefix is returned; the caller must
// handle the shortfall (the real-time output callback zero-fills it).
func (b *Buffer) Read(dst []float32) int {
	w := b.write.Load()
	r := b.read.Load()
	readable := int(w - r)
	n := len(dst)
	if n > readable {
		n = readable
	}
	if n <= 0 {
		return 0
	}
	for i := 0; i < n; i++ {
		dst[i] = b.data[(r+uint64(i))&b.mask]
	}
	b.read.Store(r + uint64(n))
	return n
}
