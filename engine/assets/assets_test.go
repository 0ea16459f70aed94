package assets

import (
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spaghettifunk/vulkanmonkey/engine/core"
	"github.com/spaghettifunk/vulkanmonkey/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSPIRV(t *testing.T, path string, words ...uint32) {
	t.Helper()
	data := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(data[i*4:], w)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func newAssetDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shaders"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "textures", "props"), 0o755))
	writeSPIRV(t, filepath.Join(dir, "shaders", "sprite.vert.spv"), 0x07230203, 0x00010000, 0, 1, 0)
	writePNG(t, filepath.Join(dir, "textures", "player.png"), 4, 2, color.RGBA{R: 255, A: 255})
	writePNG(t, filepath.Join(dir, "textures", "props", "crate.png"), 2, 2, color.RGBA{G: 255, A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644))
	return dir
}

func newManager(t *testing.T, dir string) *AssetManager {
	t.Helper()
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir))
	t.Cleanup(func() { assert.NoError(t, am.Shutdown()) })
	return am
}

func TestAssetIndex(t *testing.T) {
	am := newManager(t, newAssetDir(t))

	shaders := am.Assets(metadata.ResourceTypeShader)
	require.Len(t, shaders, 1)
	assert.Equal(t, "sprite.vert.spv", shaders[0].Name)

	images := am.Assets(metadata.ResourceTypeImage)
	require.Len(t, images, 2)
	assert.Equal(t, "crate", images[0].Name, "nested directories are indexed")
	assert.Equal(t, "player", images[1].Name)
	assert.NotEqual(t, images[0].ID, images[1].ID)

	_, ok := am.Lookup("README", metadata.ResourceTypeImage)
	assert.False(t, ok)
}

func TestLoadShader(t *testing.T) {
	am := newManager(t, newAssetDir(t))

	code, err := am.LoadShader("sprite.vert.spv")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 0x00010000, 0, 1, 0}, code)

	_, err = am.LoadShader("missing.frag.spv")
	assert.True(t, errors.Is(err, core.ErrShaderNotFound))
}

func TestLoadShaderInvalid(t *testing.T) {
	dir := newAssetDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shaders", "broken.frag.spv"), []byte{1, 2, 3}, 0o644))
	am := newManager(t, dir)

	_, err := am.LoadShader("broken.frag.spv")
	assert.True(t, errors.Is(err, core.ErrInvalidShader))
}

func TestLoadImage(t *testing.T) {
	am := newManager(t, newAssetDir(t))

	img, err := am.LoadImage("player")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.RGBAAt(3, 1))

	_, err = am.LoadImage("ghost")
	assert.True(t, errors.Is(err, ErrAssetNotFound))
}

func TestLoadImageRemovedFromDisk(t *testing.T) {
	dir := newAssetDir(t)
	am := newManager(t, dir)
	path := filepath.Join(dir, "textures", "player.png")

	require.NoError(t, os.Remove(path))
	// the watcher may or may not have dropped the entry yet; either way the
	// caller sees a missing asset
	_, err := am.LoadImage("player")
	assert.True(t, errors.Is(err, ErrAssetNotFound))
}

func TestOnChange(t *testing.T) {
	dir := newAssetDir(t)
	am := newManager(t, dir)

	var mu sync.Mutex
	changed := map[string]bool{}
	am.OnChange(func(info AssetInfo, removed bool) {
		mu.Lock()
		defer mu.Unlock()
		changed[info.Name] = !removed
	})
	seen := func(name string, present bool) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			v, ok := changed[name]
			return ok && v == present
		}
	}

	writeSPIRV(t, filepath.Join(dir, "shaders", "lines.frag.spv"), 0x07230203, 0, 0, 0, 0)
	assert.Eventually(t, seen("lines.frag.spv", true), 2*time.Second, 10*time.Millisecond)
	_, ok := am.Lookup("lines.frag.spv", metadata.ResourceTypeShader)
	assert.True(t, ok)

	// a directory created later is watched too
	sub := filepath.Join(dir, "textures", "new")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	time.Sleep(50 * time.Millisecond)
	writePNG(t, filepath.Join(sub, "coin.png"), 1, 1, color.RGBA{B: 255, A: 255})
	assert.Eventually(t, seen("coin", true), 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "shaders", "sprite.vert.spv")))
	assert.Eventually(t, seen("sprite.vert.spv", false), 2*time.Second, 10*time.Millisecond)
	_, ok = am.Lookup("sprite.vert.spv", metadata.ResourceTypeShader)
	assert.False(t, ok)
}

func TestShutdownTwice(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(t.TempDir()))
	require.NoError(t, am.Shutdown())
	require.NoError(t, am.Shutdown())
}

func TestPreloadImages(t *testing.T) {
	dir := newAssetDir(t)
	am := newManager(t, dir)

	require.NoError(t, am.PreloadImages())

	// served from memory once decoded
	path := filepath.Join(dir, "textures", "props", "crate.png")
	require.NoError(t, os.Remove(path))
	img, err := am.LoadImage("crate")
	if err == nil {
		assert.Equal(t, color.RGBA{G: 255, A: 255}, img.RGBAAt(0, 0))
	}

	// the watcher drops the cached copy with the file
	assert.Eventually(t, func() bool {
		_, err := am.LoadImage("crate")
		return errors.Is(err, ErrAssetNotFound)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPreloadImagesReportsBrokenFiles(t *testing.T) {
	dir := newAssetDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "textures", "broken.png"), []byte("not a png"), 0o644))
	am := newManager(t, dir)

	err := am.PreloadImages()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	// the good images were still decoded
	img, err := am.LoadImage("player")
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestPreloadImagesAfterShutdown(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(newAssetDir(t)))
	require.NoError(t, am.Shutdown())

	assert.Error(t, am.PreloadImages())
}
