package commands

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SHRINKIT_REMOVER_PROVIDER", "disabled")

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	path := filepath.Join(dir, "cover.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestProcessWritesResizedJPEG(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, 120, 80)
	outDir := filepath.Join(dir, "out")

	stdout, err := runCLI(t, "process", src, "--width", "60", "--quality", "70", "--out-dir", outDir)
	require.NoError(t, err)

	target := filepath.Join(outDir, "cover_shrinkit.jpg")
	assert.Contains(t, stdout, target)

	f, err := os.Open(target)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Width)
	assert.Equal(t, 40, cfg.Height)
}

func TestProcessKeepsBothAxesWhenBothAreGiven(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, 120, 80)

	_, err := runCLI(t, "process", src, "--width", "30", "--height", "10", "--out-dir", dir)
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, "cover_shrinkit.jpg"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
}

func TestProcessBackgroundRemovalWithoutProvider(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, 20, 20)

	_, err := runCLI(t, "process", src, "--remove-background", "--out-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestProcessRejectsZeroWidth(t *testing.T) {
	dir := t.TempDir()
	src := writePNG(t, dir, 20, 20)

	_, err := runCLI(t, "process", src, "--lock=false", "--width", "0", "--out-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive")
}

func TestProcessRequiresFile(t *testing.T) {
	_, err := runCLI(t, "process")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	stdout, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "shrinkit dev")
}
