package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool_GetLength(t *testing.T) {
	p := NewBufferPool(16, 64)

	b := p.Get(10)
	require.NotNil(t, b)
	assert.Len(t, b.B, 10)

	b = p.Get(100)
	assert.Len(t, b.B, 100)
	assert.GreaterOrEqual(t, cap(b.B), 100)
}

func TestBufferPool_PutDropsOversized(t *testing.T) {
	p := NewBufferPool(16, 64)

	big := &Buffer{B: make([]byte, 128)}
	p.Put(big)
	p.Put(nil)

	b := p.Get(4)
	assert.Len(t, b.B, 4)
}

func TestChunkPool(t *testing.T) {
	b := GetChunk(ChunkBufferDefaultSize)
	assert.Len(t, b.B, ChunkBufferDefaultSize)
	PutChunk(b)
}
