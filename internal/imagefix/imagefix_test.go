package imagefix

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		img.Set(x, x, color.NRGBA{R: 200, A: 128})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Format
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, FormatJPEG},
		{"png", []byte("\x89PNG\r\n\x1a\n...."), FormatPNG},
		{"gif", []byte("GIF89a..."), FormatGIF},
		{"webp", []byte("RIFF\x10\x00\x00\x00WEBPVP8 "), FormatWebP},
		{"avif 0x1c", []byte("\x00\x00\x00\x1cftypavif\x00\x00"), FormatAVIF},
		{"avif 0x18", []byte("\x00\x00\x00\x18ftypavif\x00\x00"), FormatAVIF},
		{"svg", []byte(`<svg xmlns="http://www.w3.org/2000/svg">`), FormatSVG},
		{"xml svg", []byte(`<?xml version="1.0"?><svg>`), FormatSVG},
		{"garbage", []byte("hello"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff(tt.header))
		})
	}
}

func TestFixFileReencodesMislabelledImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cnn_1_1_photo.jpg")
	require.NoError(t, os.WriteFile(path, pngBytes(t), 0o644))

	res := New(testLogger).FixFile(path)
	assert.Empty(t, res.Error)
	assert.Equal(t, FormatPNG, res.Detected)
	assert.True(t, res.Rewritten)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, Sniff(data))

	_, err = os.Stat(path + ".bak")
	assert.True(t, os.IsNotExist(err), "backup removed after success")
}

func TestFixFileLeavesCorrectFileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.png")
	orig := pngBytes(t)
	require.NoError(t, os.WriteFile(path, orig, 0o644))

	res := New(testLogger).FixFile(path)
	assert.Empty(t, res.Error)
	assert.False(t, res.Rewritten)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, orig, data)
}

func TestFixFileFailures(t *testing.T) {
	dir := t.TempDir()
	avif := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(avif, []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00mif1"), 0o644))
	empty := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	corrupt := filepath.Join(dir, "c.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("\x89PNG\r\n\x1a\ntruncated"), 0o644))

	f := New(testLogger)
	fixed, failed := f.FixAll([]string{avif, empty, corrupt, filepath.Join(dir, "missing.jpg"), ""})
	assert.Equal(t, 0, fixed)
	require.Len(t, failed, 4)
	assert.Equal(t, FormatAVIF, failed[0].Detected)
	assert.Contains(t, failed[0].Error, "cannot be decoded")
	assert.Contains(t, failed[1].Error, "empty")

	out := filepath.Join(dir, "still_failed.json")
	require.NoError(t, WritePathList(out, failed))
	paths, skipped, err := ReadPathList(out)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, []string{avif, empty, corrupt, filepath.Join(dir, "missing.jpg")}, paths)
}

func TestReadPathListSkipsNulls(t *testing.T) {
	file := filepath.Join(t.TempDir(), "unreadable.json")
	require.NoError(t, os.WriteFile(file, []byte(`[{"path":"a.jpg"},{"path":null},{"path":""},{}]`), 0o644))
	paths, skipped, err := ReadPathList(file)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg"}, paths)
	assert.Equal(t, 3, skipped)
}

func TestUnreadable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cnn.com"), 0o755))
	good := filepath.Join(dir, "cnn.com", "good.png")
	bad := filepath.Join(dir, "cnn.com", "bad.jpg")
	require.NoError(t, os.WriteFile(good, pngBytes(t), 0o644))
	require.NoError(t, os.WriteFile(bad, pngBytes(t), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte("[]"), 0o644))

	got, err := Unreadable(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{bad}, got)
}
