package memory

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func img(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestCost(t *testing.T) {
	assert.Equal(t, int64(0), Cost(nil))
	assert.Equal(t, int64(4), Cost(img(1, 1)))
	assert.Equal(t, int64(16*16*4), Cost(img(16, 16)))
}

func TestLookupAndStore(t *testing.T) {
	t.Run("HitReturnsStoredImage", func(t *testing.T) {
		c := New(0, nil)
		stored := img(4, 4)
		require.NoError(t, c.StoreImage("k", stored, nil))

		assert.Same(t, stored, c.LookupMemory("k"))
	})

	t.Run("MissReturnsNil", func(t *testing.T) {
		c := New(0, nil)
		assert.Nil(t, c.LookupMemory("absent"))
	})

	t.Run("StoreReplacesExistingEntry", func(t *testing.T) {
		c := New(0, nil)
		require.NoError(t, c.StoreImage("k", img(4, 4), nil))
		replacement := img(8, 8)
		require.NoError(t, c.StoreImage("k", replacement, nil))

		assert.Same(t, replacement, c.LookupMemory("k"))
		assert.Equal(t, 1, c.Len())
		assert.Equal(t, Cost(replacement), c.Size())
	})

	t.Run("NilImageIsIgnored", func(t *testing.T) {
		c := New(0, nil)
		require.NoError(t, c.StoreImage("k", nil, nil))
		assert.Equal(t, 0, c.Len())
	})
}

func TestEviction(t *testing.T) {
	t.Run("EvictsLeastRecentlyUsed", func(t *testing.T) {
		// Room for two 4x4 images (64 bytes each), not three.
		c := New(150, nil)

		require.NoError(t, c.StoreImage("a", img(4, 4), nil))
		require.NoError(t, c.StoreImage("b", img(4, 4), nil))

		// Touch "a" so "b" becomes the LRU victim.
		require.NotNil(t, c.LookupMemory("a"))
		require.NoError(t, c.StoreImage("c", img(4, 4), nil))

		assert.NotNil(t, c.LookupMemory("a"))
		assert.Nil(t, c.LookupMemory("b"))
		assert.NotNil(t, c.LookupMemory("c"))
	})

	t.Run("OversizedEntryIsKept", func(t *testing.T) {
		// A single entry larger than maxSize still gets cached; eviction
		// never drops the last entry.
		c := New(10, nil)
		require.NoError(t, c.StoreImage("big", img(16, 16), nil))

		assert.NotNil(t, c.LookupMemory("big"))
		assert.Equal(t, 1, c.Len())
	})

	t.Run("UnlimitedWhenMaxSizeZero", func(t *testing.T) {
		c := New(0, nil)
		for i := 0; i < 50; i++ {
			require.NoError(t, c.StoreImage(string(rune('a'+i)), img(8, 8), nil))
		}
		assert.Equal(t, 50, c.Len())
	})

	t.Run("SizeTracksEvictions", func(t *testing.T) {
		c := New(150, nil)
		require.NoError(t, c.StoreImage("a", img(4, 4), nil))
		require.NoError(t, c.StoreImage("b", img(4, 4), nil))
		require.NoError(t, c.StoreImage("c", img(4, 4), nil))

		assert.Equal(t, 2, c.Len())
		assert.Equal(t, int64(128), c.Size())
	})
}

func TestRemove(t *testing.T) {
	t.Run("DropsEntry", func(t *testing.T) {
		c := New(0, nil)
		require.NoError(t, c.StoreImage("k", img(4, 4), nil))
		require.NoError(t, c.RemoveImage("k"))

		assert.Nil(t, c.LookupMemory("k"))
		assert.Equal(t, int64(0), c.Size())
	})

	t.Run("MissingKeyIsNotAnError", func(t *testing.T) {
		c := New(0, nil)
		assert.NoError(t, c.RemoveImage("absent"))
	})
}

func TestClose(t *testing.T) {
	c := New(0, nil)
	require.NoError(t, c.StoreImage("k", img(4, 4), nil))
	require.NoError(t, c.Close())

	assert.Nil(t, c.LookupMemory("k"))
	assert.Error(t, c.StoreImage("k2", img(4, 4), nil))
	assert.NoError(t, c.RemoveImage("k"))
	assert.NoError(t, c.Close())
}

func TestConcurrentAccess(t *testing.T) {
	c := New(1<<20, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				_ = c.StoreImage(key, img(8, 8), nil)
				c.LookupMemory(key)
				if j%10 == 0 {
					_ = c.RemoveImage(key)
				}
			}
		}()
	}
	wg.Wait()
}
