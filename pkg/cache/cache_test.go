package cache

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pellucid/imageflow/pkg/loader"
)

// ============================================================================
// Key derivation
// ============================================================================

func TestTransformedKey(t *testing.T) {
	t.Run("FoldsTransformerIdentity", func(t *testing.T) {
		key := TransformedKey("https://example.com/a.png", "grayscale")
		assert.Equal(t, "https://example.com/a.png|t:grayscale", key)
	})

	t.Run("EmptyTransformerKeepsBase", func(t *testing.T) {
		assert.Equal(t, "base", TransformedKey("base", ""))
	})

	t.Run("Deterministic", func(t *testing.T) {
		a := TransformedKey("k", "resize:64x64")
		b := TransformedKey("k", "resize:64x64")
		assert.Equal(t, a, b)
	})

	t.Run("DistinctTransformersNeverCollide", func(t *testing.T) {
		a := TransformedKey("k", "grayscale")
		b := TransformedKey("k", "resize:64x64")
		assert.NotEqual(t, a, b)
		assert.NotEqual(t, "k", a)
	})
}

// ============================================================================
// Capability detection
// ============================================================================

// storeOnly implements Store and nothing else.
type storeOnly struct{}

func (storeOnly) StoreImage(string, image.Image, []byte) error { return nil }
func (storeOnly) RemoveImage(string) error                     { return nil }
func (storeOnly) Close() error                                 { return nil }

// fullStore adds both capability variants.
type fullStore struct {
	storeOnly
	img image.Image
}

func (s *fullStore) LookupMemory(string) image.Image { return s.img }

func (s *fullStore) Contains(key string, tier Tier, fn func(bool)) { fn(s.img != nil) }

func (s *fullStore) Query(key string, opts QueryOptions, fn func(image.Image, []byte, loader.CacheSource)) {
	if s.img != nil {
		fn(s.img, nil, loader.SourceMemory)
		return
	}
	fn(nil, nil, loader.SourceNone)
}

func TestCapabilityDetection(t *testing.T) {
	t.Run("PlainStoreHasNoCapabilities", func(t *testing.T) {
		assert.Nil(t, AsFastMemoryCache(storeOnly{}))
		assert.Nil(t, AsGenericCache(storeOnly{}))
	})

	t.Run("CapableStoreIsDetected", func(t *testing.T) {
		s := &fullStore{}
		assert.NotNil(t, AsFastMemoryCache(s))
		assert.NotNil(t, AsGenericCache(s))
	})

	t.Run("NilStore", func(t *testing.T) {
		assert.Nil(t, AsFastMemoryCache(nil))
		assert.Nil(t, AsGenericCache(nil))
	})
}

// ============================================================================
// Tiered composite
// ============================================================================

// recordingTier is a Store + both capabilities backed by a map, recording
// stores so promotion can be asserted.
type recordingTier struct {
	entries map[string]image.Image
	stores  []string
	removed []string
	closed  bool
}

func newRecordingTier() *recordingTier {
	return &recordingTier{entries: make(map[string]image.Image)}
}

func (r *recordingTier) LookupMemory(key string) image.Image { return r.entries[key] }

func (r *recordingTier) Contains(key string, tier Tier, fn func(bool)) {
	_, ok := r.entries[key]
	fn(ok)
}

func (r *recordingTier) Query(key string, opts QueryOptions, fn func(image.Image, []byte, loader.CacheSource)) {
	if img, ok := r.entries[key]; ok {
		fn(img, []byte{1, 2, 3}, loader.SourceDisk)
		return
	}
	fn(nil, nil, loader.SourceNone)
}

func (r *recordingTier) StoreImage(key string, img image.Image, _ []byte) error {
	r.entries[key] = img
	r.stores = append(r.stores, key)
	return nil
}

func (r *recordingTier) RemoveImage(key string) error {
	delete(r.entries, key)
	r.removed = append(r.removed, key)
	return nil
}

func (r *recordingTier) Close() error {
	r.closed = true
	return nil
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 2, 2))
}

func TestTiered(t *testing.T) {
	t.Run("LookupMemoryOnlyTouchesMemoryTier", func(t *testing.T) {
		mem := newRecordingTier()
		disk := newRecordingTier()
		tiered := &Tiered{Memory: mem, Disk: disk}

		img := testImage()
		disk.entries["k"] = img

		assert.Nil(t, tiered.LookupMemory("k"))

		mem.entries["k"] = img
		assert.Same(t, img, tiered.LookupMemory("k"))
	})

	t.Run("QueryMemoryFirst", func(t *testing.T) {
		mem := newRecordingTier()
		disk := newRecordingTier()
		tiered := &Tiered{Memory: mem, Disk: disk}

		img := testImage()
		mem.entries["k"] = img

		var gotSource loader.CacheSource
		tiered.Query("k", QueryOptions{Tier: TierAll}, func(got image.Image, _ []byte, source loader.CacheSource) {
			assert.Same(t, img, got)
			gotSource = source
		})
		assert.Equal(t, loader.SourceMemory, gotSource)
	})

	t.Run("DiskHitIsPromotedToMemory", func(t *testing.T) {
		mem := newRecordingTier()
		disk := newRecordingTier()
		tiered := &Tiered{Memory: mem, Disk: disk}

		img := testImage()
		disk.entries["k"] = img

		var gotSource loader.CacheSource
		tiered.Query("k", QueryOptions{Tier: TierAll}, func(got image.Image, _ []byte, source loader.CacheSource) {
			gotSource = source
		})

		assert.Equal(t, loader.SourceDisk, gotSource)
		assert.Equal(t, []string{"k"}, mem.stores)
		assert.Same(t, img, tiered.LookupMemory("k"))
	})

	t.Run("MemoryTierQueryNeverReachesDisk", func(t *testing.T) {
		mem := newRecordingTier()
		disk := newRecordingTier()
		tiered := &Tiered{Memory: mem, Disk: disk}

		disk.entries["k"] = testImage()

		var gotSource loader.CacheSource
		called := false
		tiered.Query("k", QueryOptions{Tier: TierMemory}, func(got image.Image, _ []byte, source loader.CacheSource) {
			called = true
			assert.Nil(t, got)
			gotSource = source
		})

		require.True(t, called)
		assert.Equal(t, loader.SourceNone, gotSource)
		assert.Empty(t, mem.stores)
	})

	t.Run("ContainsScopesToTier", func(t *testing.T) {
		mem := newRecordingTier()
		disk := newRecordingTier()
		tiered := &Tiered{Memory: mem, Disk: disk}

		disk.entries["k"] = testImage()

		var found bool
		tiered.Contains("k", TierMemory, func(f bool) { found = f })
		assert.False(t, found)

		tiered.Contains("k", TierDisk, func(f bool) { found = f })
		assert.True(t, found)

		tiered.Contains("k", TierAll, func(f bool) { found = f })
		assert.True(t, found)
	})

	t.Run("StoreWritesThroughBothTiers", func(t *testing.T) {
		mem := newRecordingTier()
		disk := newRecordingTier()
		tiered := &Tiered{Memory: mem, Disk: disk}

		require.NoError(t, tiered.StoreImage("k", testImage(), []byte{1}))

		assert.Equal(t, []string{"k"}, mem.stores)
		assert.Equal(t, []string{"k"}, disk.stores)
	})

	t.Run("RemoveDropsFromBothTiers", func(t *testing.T) {
		mem := newRecordingTier()
		disk := newRecordingTier()
		tiered := &Tiered{Memory: mem, Disk: disk}

		require.NoError(t, tiered.StoreImage("k", testImage(), nil))
		require.NoError(t, tiered.RemoveImage("k"))

		assert.Equal(t, []string{"k"}, mem.removed)
		assert.Equal(t, []string{"k"}, disk.removed)
		assert.Nil(t, tiered.LookupMemory("k"))
	})

	t.Run("NilTiersAreTolerated", func(t *testing.T) {
		tiered := &Tiered{}

		assert.Nil(t, tiered.LookupMemory("k"))
		require.NoError(t, tiered.StoreImage("k", testImage(), nil))
		require.NoError(t, tiered.RemoveImage("k"))

		var found bool
		tiered.Contains("k", TierAll, func(f bool) { found = f })
		assert.False(t, found)

		called := false
		tiered.Query("k", QueryOptions{Tier: TierAll}, func(img image.Image, _ []byte, _ loader.CacheSource) {
			called = true
			assert.Nil(t, img)
		})
		assert.True(t, called)

		require.NoError(t, tiered.Close())
	})

	t.Run("CloseClosesBothTiers", func(t *testing.T) {
		mem := newRecordingTier()
		disk := newRecordingTier()
		tiered := &Tiered{Memory: mem, Disk: disk}

		require.NoError(t, tiered.Close())
		assert.True(t, mem.closed)
		assert.True(t, disk.closed)
	})
}
