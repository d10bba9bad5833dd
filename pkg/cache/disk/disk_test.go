package disk

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pellucid/imageflow/pkg/cache"
	"github.com/pellucid/imageflow/pkg/loader"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(Config{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func contains(t *testing.T, c *Cache, key string, tier cache.Tier) bool {
	t.Helper()
	ch := make(chan bool, 1)
	c.Contains(key, tier, func(found bool) { ch <- found })
	select {
	case found := <-ch:
		return found
	case <-time.After(5 * time.Second):
		t.Fatal("Contains callback never arrived")
		return false
	}
}

type queryResult struct {
	img    image.Image
	data   []byte
	source loader.CacheSource
}

func query(t *testing.T, c *Cache, key string, opts cache.QueryOptions) queryResult {
	t.Helper()
	ch := make(chan queryResult, 1)
	c.Query(key, opts, func(img image.Image, data []byte, source loader.CacheSource) {
		ch <- queryResult{img, data, source}
	})
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("Query callback never arrived")
		return queryResult{}
	}
}

// ============================================================================
// Store / Query round trips
// ============================================================================

func TestStoreAndQuery(t *testing.T) {
	t.Run("HitDecodesStoredBytes", func(t *testing.T) {
		c := newTestCache(t)
		data := pngBytes(t, 8, 6)
		require.NoError(t, c.StoreImage("k", nil, data))

		r := query(t, c, "k", cache.QueryOptions{Tier: cache.TierDisk})
		require.NotNil(t, r.img)
		assert.Equal(t, 8, r.img.Bounds().Dx())
		assert.Equal(t, 6, r.img.Bounds().Dy())
		assert.Equal(t, data, r.data)
		assert.Equal(t, loader.SourceDisk, r.source)
	})

	t.Run("MissDeliversNil", func(t *testing.T) {
		c := newTestCache(t)

		r := query(t, c, "absent", cache.QueryOptions{Tier: cache.TierAll})
		assert.Nil(t, r.img)
		assert.Nil(t, r.data)
		assert.Equal(t, loader.SourceNone, r.source)
	})

	t.Run("DecodeOnlyOmitsRawBytes", func(t *testing.T) {
		c := newTestCache(t)
		require.NoError(t, c.StoreImage("k", nil, pngBytes(t, 4, 4)))

		r := query(t, c, "k", cache.QueryOptions{Tier: cache.TierAll, DecodeOnly: true})
		assert.NotNil(t, r.img)
		assert.Nil(t, r.data)
	})

	t.Run("UndecodableEntryIsAMiss", func(t *testing.T) {
		c := newTestCache(t)
		require.NoError(t, c.StoreImage("k", nil, []byte("not an image")))

		r := query(t, c, "k", cache.QueryOptions{Tier: cache.TierDisk})
		assert.Nil(t, r.img)
		assert.Equal(t, loader.SourceNone, r.source)
	})

	t.Run("EmptyDataIsSkipped", func(t *testing.T) {
		c := newTestCache(t)
		require.NoError(t, c.StoreImage("k", image.NewRGBA(image.Rect(0, 0, 2, 2)), nil))

		assert.False(t, contains(t, c, "k", cache.TierDisk))
	})

	t.Run("MemoryTierQueryAlwaysMisses", func(t *testing.T) {
		c := newTestCache(t)
		require.NoError(t, c.StoreImage("k", nil, pngBytes(t, 4, 4)))

		r := query(t, c, "k", cache.QueryOptions{Tier: cache.TierMemory})
		assert.Nil(t, r.img)
		assert.Equal(t, loader.SourceNone, r.source)
	})
}

// ============================================================================
// Contains
// ============================================================================

func TestContains(t *testing.T) {
	t.Run("ReportsMembership", func(t *testing.T) {
		c := newTestCache(t)
		require.NoError(t, c.StoreImage("k", nil, pngBytes(t, 4, 4)))

		assert.True(t, contains(t, c, "k", cache.TierDisk))
		assert.True(t, contains(t, c, "k", cache.TierAll))
		assert.False(t, contains(t, c, "absent", cache.TierDisk))
	})

	t.Run("MemoryTierProbeIsFalseWithoutDatabaseAccess", func(t *testing.T) {
		c := newTestCache(t)
		require.NoError(t, c.StoreImage("k", nil, pngBytes(t, 4, 4)))

		assert.False(t, contains(t, c, "k", cache.TierMemory))
	})
}

// ============================================================================
// Remove / Close / TTL
// ============================================================================

func TestRemove(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.StoreImage("k", nil, pngBytes(t, 4, 4)))
	require.NoError(t, c.RemoveImage("k"))

	assert.False(t, contains(t, c, "k", cache.TierDisk))
	assert.NoError(t, c.RemoveImage("k"))
}

func TestTTLExpiry(t *testing.T) {
	c, err := New(Config{InMemory: true, TTL: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.StoreImage("k", nil, pngBytes(t, 4, 4)))
	require.True(t, contains(t, c, "k", cache.TierDisk))

	time.Sleep(150 * time.Millisecond)
	assert.False(t, contains(t, c, "k", cache.TierDisk))
}

func TestClose(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		c, err := New(Config{InMemory: true}, nil)
		require.NoError(t, err)

		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
	})

	t.Run("PendingCallbacksDrainBeforeClose", func(t *testing.T) {
		c, err := New(Config{InMemory: true}, nil)
		require.NoError(t, err)
		require.NoError(t, c.StoreImage("k", nil, pngBytes(t, 4, 4)))

		delivered := make(chan struct{})
		c.Contains("k", cache.TierDisk, func(bool) { close(delivered) })
		require.NoError(t, c.Close())

		select {
		case <-delivered:
		default:
			t.Fatal("queued callback was dropped by Close")
		}
	})
}

func TestPathRequired(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

// ============================================================================
// Delivery context
// ============================================================================

func TestCallbacksArriveOnOneGoroutine(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.StoreImage("k", nil, pngBytes(t, 4, 4)))

	// All callbacks record the identity of their goroutine via a shared
	// unsynchronized variable; the race detector flags any violation of the
	// single-delivery-goroutine contract, and the ordering assertion below
	// catches interleaving.
	var order []int
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		i := i
		c.Contains("k", cache.TierDisk, func(bool) {
			order = append(order, i)
			if i == 19 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callbacks never drained")
	}

	require.Len(t, order, 20)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}
