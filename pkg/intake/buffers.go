package intake

import "sync"

const copyBufferSize = 256 * 1024

// copyBuffers holds reusable buffers for streaming parts to disk
var copyBuffers = &bufferPool{
	pool: sync.Pool{
		New: func() interface{} {
			buf := make([]byte, copyBufferSize)
			return &buf
		},
	},
}

type bufferPool struct {
	pool sync.Pool
}

func (p *bufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *bufferPool) Put(buf *[]byte) {
	if cap(*buf) != copyBufferSize {
		return
	}
	p.pool.Put(buf)
}
