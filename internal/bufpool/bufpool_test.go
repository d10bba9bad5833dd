package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetChunk(t *testing.T) {
	buf := GetChunk()
	defer Put(buf)

	assert.Equal(t, ChunkSize, len(buf))
	assert.Equal(t, ChunkSize, cap(buf))
}

func TestGet(t *testing.T) {
	t.Run("SmallRequestUsesChunkClass", func(t *testing.T) {
		buf := Get(100)
		defer Put(buf)

		assert.Equal(t, 100, len(buf))
		assert.Equal(t, ChunkSize, cap(buf))
	})

	t.Run("MediumRequestUsesPayloadClass", func(t *testing.T) {
		buf := Get(200 << 10)
		defer Put(buf)

		assert.Equal(t, 200<<10, len(buf))
		assert.Equal(t, PayloadSize, cap(buf))
	})

	t.Run("OversizedRequestIsAllocatedDirectly", func(t *testing.T) {
		buf := Get(4 << 20)
		defer Put(buf)

		assert.Equal(t, 4<<20, len(buf))
		assert.Equal(t, len(buf), cap(buf))
	})

	t.Run("ZeroRequest", func(t *testing.T) {
		buf := Get(0)
		defer Put(buf)

		assert.Equal(t, 0, len(buf))
		assert.Equal(t, ChunkSize, cap(buf))
	})
}

func TestPutForeignBuffer(t *testing.T) {
	// Buffers with an unknown capacity must be dropped, not pooled.
	Put(make([]byte, 123))
	buf := GetChunk()
	defer Put(buf)
	assert.Equal(t, ChunkSize, cap(buf))
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				buf := Get(j % (2 << 20))
				Put(buf)
			}
		}()
	}
	wg.Wait()
}
