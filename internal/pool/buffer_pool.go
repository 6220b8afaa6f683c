// Package pool recycles the chunk buffers used for on-demand record reads.
package pool

import "sync"

// Buffer sizes for record chunks.
const (
	ChunkBufferDefaultSize  = 1024      // 1KiB
	ChunkBufferMaxThreshold = 1024 * 64 // 64KiB
)

// Buffer is a reusable byte slice.
type Buffer struct {
	// B is the underlying byte slice.
	B []byte
}

// Grow makes sure the buffer can hold n bytes and sets its length to n.
func (b *Buffer) Grow(n int) []byte {
	if cap(b.B) < n {
		b.B = make([]byte, n)
	}
	b.B = b.B[:n]
	return b.B
}

// BufferPool is a pool of Buffers.
//
// Buffers larger than maxThreshold are dropped on Put so one oversized
// record does not pin memory for the lifetime of the process.
type BufferPool struct {
	pool         sync.Pool
	maxThreshold int
}

// NewBufferPool creates a pool of buffers with the given default capacity.
func NewBufferPool(defaultSize, maxThreshold int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() any {
				return &Buffer{B: make([]byte, 0, defaultSize)}
			},
		},
		maxThreshold: maxThreshold,
	}
}

// Get retrieves a Buffer with length n.
func (p *BufferPool) Get(n int) *Buffer {
	b, _ := p.pool.Get().(*Buffer)
	b.Grow(n)
	return b
}

// Put returns a Buffer to the pool.
func (p *BufferPool) Put(b *Buffer) {
	if b == nil {
		return
	}
	if p.maxThreshold > 0 && cap(b.B) > p.maxThreshold {
		return
	}
	b.B = b.B[:0]
	p.pool.Put(b)
}

var chunkPool = NewBufferPool(ChunkBufferDefaultSize, ChunkBufferMaxThreshold)

// GetChunk retrieves a chunk buffer of length n from the default pool.
func GetChunk(n int) *Buffer {
	return chunkPool.Get(n)
}

// PutChunk returns a chunk buffer to the default pool.
func PutChunk(b *Buffer) {
	chunkPool.Put(b)
}
