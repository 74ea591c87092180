package core

import (
	"bytes"
	"sync"
)

// GenericPool is a generic wrapper around sync.Pool
type GenericPool[T any] struct {
	pool sync.Pool
}

// NewGenericPool creates a new GenericPool with a function to create new items.
func NewGenericPool[T any](newItem func() T) *GenericPool[T] {
	return &GenericPool[T]{
		pool: sync.Pool{
			New: func() interface{} {
				return newItem()
			},
		},
	}
}

// Get retrieves an item from the pool.
func (p *GenericPool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an item to the pool.
func (p *GenericPool[T]) Put(item T) {
	p.pool.Put(item)
}

// BufferPool holds scratch buffers for codecs that encode through an
// io.Writer before copying into the caller's page-sized destination.
var BufferPool = NewGenericPool(func() *bytes.Buffer {
	return new(bytes.Buffer)
})

// GetBuffer returns an empty buffer from BufferPool.
func GetBuffer() *bytes.Buffer {
	b := BufferPool.Get()
	b.Reset()
	return b
}

// PutBuffer returns b to BufferPool. Oversized buffers are dropped so one
// large page does not pin memory for the life of the process.
func PutBuffer(b *bytes.Buffer) {
	if b.Cap() > 64<<20 {
		return
	}
	BufferPool.Put(b)
}
