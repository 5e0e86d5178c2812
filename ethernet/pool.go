package ethernet

import "sync"

var frameBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, MaxFrameSize)
		return &buf
	},
}

// GetBuffer returns a MaxFrameSize receive buffer from the pool.
func GetBuffer() []byte {
	return *frameBufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer to the pool. The caller must not touch it
// afterwards.
func PutBuffer(buf []byte) {
	if cap(buf) >= MaxFrameSize {
		buf = buf[:MaxFrameSize]
		frameBufferPool.Put(&buf)
	}
}
