// Package bufpool pools the byte slices used while streaming image payloads.
//
// Downloads read bodies in fixed-size chunks; a burst of concurrent loads
// would otherwise allocate a fresh read buffer per fetch and feed the GC for
// no reason. Two size classes cover the workload:
//   - chunk buffers (32KB): the streaming read stride
//   - payload buffers (1MB): accumulation for typical encoded images
//
// Requests above the payload class are allocated directly and never pooled,
// so one oversized photo does not pin a megabyte-class buffer forever.
//
// All operations are safe for concurrent use via sync.Pool.
package bufpool

import "sync"

// Buffer size classes.
const (
	// ChunkSize is the streaming read stride for response bodies.
	ChunkSize = 32 << 10

	// PayloadSize covers typical encoded images in one buffer.
	PayloadSize = 1 << 20
)

var (
	chunkPool = sync.Pool{
		New: func() any {
			buf := make([]byte, ChunkSize)
			return &buf
		},
	}
	payloadPool = sync.Pool{
		New: func() any {
			buf := make([]byte, PayloadSize)
			return &buf
		},
	}
)

// GetChunk returns a ChunkSize read buffer.
func GetChunk() []byte {
	return *(chunkPool.Get().(*[]byte))
}

// Get returns a buffer with length >= n. Oversized requests are allocated
// directly and will be dropped again by Put.
func Get(n int) []byte {
	switch {
	case n <= ChunkSize:
		return GetChunk()[:max(n, 0):ChunkSize]
	case n <= PayloadSize:
		return (*(payloadPool.Get().(*[]byte)))[:n:PayloadSize]
	default:
		return make([]byte, n)
	}
}

// Put returns a buffer to its pool. Buffers that did not come from the pool,
// including oversized direct allocations, are dropped.
func Put(buf []byte) {
	switch cap(buf) {
	case ChunkSize:
		b := buf[:ChunkSize]
		chunkPool.Put(&b)
	case PayloadSize:
		b := buf[:PayloadSize]
		payloadPool.Put(&b)
	}
}
