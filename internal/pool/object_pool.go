package pool

import (
	"bytes"
	"sync"
)

// BufferPool recycles bytes.Buffer values. Buffers that grew beyond maxCap
// are dropped on Put so one large payload does not pin memory.
type BufferPool struct {
	pool   sync.Pool
	maxCap int
}

// NewBufferPool creates a pool whose fresh buffers start with initCap bytes.
func NewBufferPool(initCap, maxCap int) *BufferPool {
	p := &BufferPool{maxCap: maxCap}
	p.pool.New = func() any {
		return bytes.NewBuffer(make([]byte, 0, initCap))
	}
	return p
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put resets buf and returns it to the pool.
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > p.maxCap {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}

// ByteBufferPool provides request body buffers for provider clients.
var ByteBufferPool = NewBufferPool(4096, 1<<20)
