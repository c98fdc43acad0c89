package optimize

import (
	"bytes"
	"sync"
)

// BufferPool hands out reusable encode buffers. Buffers that grew past
// maxRetained are dropped instead of pooled.
type BufferPool struct {
	pool        sync.Pool
	maxRetained int
}

func NewBufferPool(initial, maxRetained int) *BufferPool {
	return &BufferPool{
		maxRetained: maxRetained,
		pool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, initial))
			},
		},
	}
}

// Get returns an empty buffer.
func (p *BufferPool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || (p.maxRetained > 0 && buf.Cap() > p.maxRetained) {
		return
	}
	p.pool.Put(buf)
}
