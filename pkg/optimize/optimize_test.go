package optimize

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferPool_GetReturnsEmpty(t *testing.T) {
	pool := NewBufferPool(64, 1024)

	buf := pool.Get()
	assert.Zero(t, buf.Len())
	assert.GreaterOrEqual(t, buf.Cap(), 64)

	buf.WriteString("hello")
	pool.Put(buf)

	again := pool.Get()
	assert.Zero(t, again.Len())
}

func TestBufferPool_DropsOversized(t *testing.T) {
	pool := NewBufferPool(16, 32)

	big := bytes.NewBuffer(make([]byte, 0, 4096))
	pool.Put(big)
	pool.Put(nil)

	buf := pool.Get()
	assert.LessOrEqual(t, buf.Cap(), 32)
}
