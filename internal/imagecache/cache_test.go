package imagecache

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := New(t.TempDir())
	require.NoError(t, err)
	return cache
}

func TestDecode(t *testing.T) {
	img, err := Decode(pngBytes(t, 4, 3, color.White))
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)

	img, err = Decode(jpegBytes(t, 10, 20))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)

	_, err = Decode([]byte("<html>not an image</html>"))
	assert.True(t, errors.Is(err, ErrDecode))

	_, err = Decode(nil)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestCache_StoreAndLookup(t *testing.T) {
	cache := newTestCache(t)
	data := pngBytes(t, 8, 8, color.Black)
	img, err := Decode(data)
	require.NoError(t, err)

	require.NoError(t, cache.Store("36000001", img))
	assert.True(t, cache.Has("36000001"))

	got, ok := cache.Lookup("36000001")
	require.True(t, ok)
	assert.Equal(t, data, got.Data)

	onDisk, err := os.ReadFile(cache.Path("36000001"))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk, "entries are stored as received")
}

func TestCache_LookupMiss(t *testing.T) {
	cache := newTestCache(t)

	got, ok := cache.Lookup("unknown")
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.False(t, cache.Has("unknown"))

	_, ok = cache.Lookup("../escape")
	assert.False(t, ok)
}

func TestCache_LookupCorruptEntry(t *testing.T) {
	cache := newTestCache(t)
	require.NoError(t, os.WriteFile(cache.Path("broken"), []byte("garbage"), 0o644))

	_, ok := cache.Lookup("broken")
	assert.False(t, ok)
}

func TestDecode_Truncated(t *testing.T) {
	for name, data := range map[string][]byte{
		"png":  pngBytes(t, 24, 24, color.Black),
		"jpeg": jpegBytes(t, 40, 30),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data[:len(data)/2])
			assert.True(t, errors.Is(err, ErrDecode), "got %v", err)
		})
	}
}

func TestCache_LookupTruncatedEntry(t *testing.T) {
	cache := newTestCache(t)
	data := pngBytes(t, 24, 24, color.Black)
	require.NoError(t, os.WriteFile(cache.Path("cut"), data[:60], 0o644))

	_, ok := cache.Lookup("cut")
	assert.False(t, ok, "a truncated file is a miss")
}

func TestCache_Overwrite(t *testing.T) {
	cache := newTestCache(t)
	first, err := Decode(pngBytes(t, 2, 2, color.White))
	require.NoError(t, err)
	second, err := Decode(pngBytes(t, 5, 5, color.Black))
	require.NoError(t, err)

	require.NoError(t, cache.Store("k", first))
	require.NoError(t, cache.Store("k", second))

	got, ok := cache.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, second.Data, got.Data)

	entries, err := os.ReadDir(cache.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCache_StoreErrors(t *testing.T) {
	cache := newTestCache(t)
	img, err := Decode(pngBytes(t, 1, 1, color.White))
	require.NoError(t, err)

	var cacheErr *CacheError
	err = cache.Store("a/b", img)
	require.True(t, errors.As(err, &cacheErr))
	assert.Equal(t, "a/b", cacheErr.Key)

	err = cache.Store("empty", &Image{})
	assert.True(t, errors.As(err, &cacheErr))
}

func TestCache_ConcurrentStores(t *testing.T) {
	cache := newTestCache(t)

	payloads := make([][]byte, 8)
	for i := range payloads {
		payloads[i] = pngBytes(t, i+1, i+1, color.RGBA{uint8(i * 20), 0, 0, 255})
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for _, key := range []string{fmt.Sprintf("distinct-%d", i), "shared"} {
			wg.Add(1)
			go func(key string, data []byte) {
				defer wg.Done()
				img, err := Decode(data)
				if assert.NoError(t, err) {
					assert.NoError(t, cache.Store(key, img))
				}
			}(key, payloads[i])
		}
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		got, ok := cache.Lookup(fmt.Sprintf("distinct-%d", i))
		require.True(t, ok)
		assert.Equal(t, payloads[i], got.Data)
	}

	shared, ok := cache.Lookup("shared")
	require.True(t, ok)
	assert.Contains(t, payloads, shared.Data, "same-key writes never interleave")
}

func TestCache_Remove(t *testing.T) {
	cache := newTestCache(t)
	img, err := Decode(pngBytes(t, 1, 1, color.White))
	require.NoError(t, err)

	require.NoError(t, cache.Store("gone", img))
	require.NoError(t, cache.Remove("gone"))
	assert.False(t, cache.Has("gone"))
	assert.NoError(t, cache.Remove("gone"))
}

func TestImage_BlurHash(t *testing.T) {
	img, err := Decode(jpegBytes(t, 200, 100))
	require.NoError(t, err)

	hash, err := img.BlurHash()
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	thumb := thumbnail(mustDecode(t, img.Data))
	assert.Equal(t, 64, thumb.Bounds().Dx())
	assert.Equal(t, 32, thumb.Bounds().Dy())
}

func mustDecode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}
