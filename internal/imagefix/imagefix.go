// Package imagefix repairs downloaded images whose bytes do not match the
// format their file extension promises.
package imagefix

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

// Format is a sniffed image container format.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
	FormatAVIF    Format = "avif"
	FormatSVG     Format = "svg"
)

// Errors reported for files that cannot be repaired.
var (
	ErrEmpty       = errors.New("empty file")
	ErrUnsupported = errors.New("format cannot be decoded")
)

// Sniff identifies the format from the first bytes of a file.
func Sniff(header []byte) Format {
	switch {
	case len(header) >= 3 && bytes.Equal(header[:3], []byte{0xff, 0xd8, 0xff}):
		return FormatJPEG
	case bytes.HasPrefix(header, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case bytes.HasPrefix(header, []byte("GIF87a")), bytes.HasPrefix(header, []byte("GIF89a")):
		return FormatGIF
	case len(header) >= 12 && string(header[:4]) == "RIFF" && string(header[8:12]) == "WEBP":
		return FormatWebP
	case bytes.HasPrefix(header, []byte("BM")):
		return FormatBMP
	case len(header) >= 12 && string(header[4:8]) == "ftyp" &&
		(string(header[8:12]) == "avif" || string(header[8:12]) == "avis"):
		return FormatAVIF
	}
	trimmed := bytes.TrimSpace(header)
	if bytes.HasPrefix(trimmed, []byte("<svg")) || bytes.HasPrefix(trimmed, []byte("<?xml")) {
		return FormatSVG
	}
	return FormatUnknown
}

// ExtFormat is the format a file extension promises.
func ExtFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".gif":
		return FormatGIF
	case ".webp":
		return FormatWebP
	case ".bmp":
		return FormatBMP
	default:
		return FormatUnknown
	}
}

// Result describes what FixFile did to one file.
type Result struct {
	Path     string `json:"path"`
	Detected Format `json:"detected,omitempty"`
	// Rewritten is true when the file was re-encoded.
	Rewritten bool   `json:"rewritten,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Fixer repairs files in place.
type Fixer struct {
	logger *slog.Logger
	// JPEGQuality is used when re-encoding to JPEG.
	JPEGQuality int
}

// New creates a Fixer.
func New(logger *slog.Logger) *Fixer {
	return &Fixer{
		logger:      logger.With("component", "imagefix"),
		JPEGQuality: 95,
	}
}

// FixFile makes path readable as the format its extension names. A file
// already in that format is left alone. A decodable file in another format
// is re-encoded; the original is backed up and restored if the rewrite
// fails. AVIF and SVG have no decoder here and are reported as failures.
func (f *Fixer) FixFile(path string) Result {
	res := Result{Path: path}
	fail := func(err error) Result {
		res.Error = err.Error()
		f.logger.Warn("image not fixed", "path", path, "detected", res.Detected, "error", err)
		return res
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	if len(data) == 0 {
		return fail(ErrEmpty)
	}
	res.Detected = Sniff(data[:min(len(data), 32)])

	want := ExtFormat(path)
	if res.Detected == FormatAVIF || res.Detected == FormatSVG {
		return fail(fmt.Errorf("%w: %s", ErrUnsupported, res.Detected))
	}

	img, err := decode(res.Detected, data)
	if err != nil {
		return fail(fmt.Errorf("decode: %w", err))
	}
	if want == res.Detected || !canEncode(want) {
		// Readable as-is; nothing we could write would be better.
		return res
	}

	var buf bytes.Buffer
	if err := f.encode(&buf, want, img); err != nil {
		return fail(fmt.Errorf("encode %s: %w", want, err))
	}
	if err := replace(path, buf.Bytes()); err != nil {
		return fail(err)
	}
	res.Rewritten = true
	f.logger.Info("image re-encoded", "path", path, "from", res.Detected, "to", want)
	return res
}

// FixAll runs FixFile over paths and returns the results of the files that
// could not be fixed.
func (f *Fixer) FixAll(paths []string) (fixed int, failed []Result) {
	for i, p := range paths {
		if p == "" {
			continue
		}
		if i > 0 && i%1000 == 0 {
			f.logger.Info("progress", "done", i, "total", len(paths))
		}
		res := f.FixFile(p)
		if res.Error != "" {
			failed = append(failed, res)
			continue
		}
		fixed++
	}
	f.logger.Info("image repair finished", "fixed", fixed, "failed", len(failed))
	return fixed, failed
}

// Unreadable walks dir and returns the image files that the decoders
// registered here cannot read, or whose bytes disagree with their extension.
func Unreadable(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || ExtFormat(p) == FormatUnknown {
			return nil
		}
		fh, err := os.Open(p)
		if err != nil {
			out = append(out, p)
			return nil
		}
		defer fh.Close()
		header := make([]byte, 32)
		n, _ := io.ReadFull(fh, header)
		if Sniff(header[:n]) != ExtFormat(p) {
			out = append(out, p)
		}
		return nil
	})
	return out, err
}

type pathEntry struct {
	Path *string `json:"path"`
}

// ReadPathList loads a JSON array of {"path": ...} objects. Null and empty
// paths are skipped and counted.
func ReadPathList(file string) (paths []string, skipped int, err error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, 0, err
	}
	var entries []pathEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", file, err)
	}
	for _, e := range entries {
		if e.Path == nil || *e.Path == "" {
			skipped++
			continue
		}
		paths = append(paths, *e.Path)
	}
	return paths, skipped, nil
}

// WritePathList writes paths as a JSON array of {"path": ...} objects.
func WritePathList(file string, results []Result) error {
	if results == nil {
		results = []Result{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, append(data, '\n'), 0o644)
}

func decode(format Format, data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	switch format {
	case FormatJPEG:
		return jpeg.Decode(r)
	case FormatPNG:
		return png.Decode(r)
	case FormatGIF:
		return gif.Decode(r)
	case FormatWebP:
		return webp.Decode(r)
	case FormatBMP:
		return bmp.Decode(r)
	default:
		img, _, err := image.Decode(r)
		return img, err
	}
}

func canEncode(f Format) bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatGIF, FormatBMP:
		return true
	}
	return false
}

func (f *Fixer) encode(w io.Writer, format Format, img image.Image) error {
	switch format {
	case FormatJPEG:
		return jpeg.Encode(w, flatten(img), &jpeg.Options{Quality: f.JPEGQuality})
	case FormatPNG:
		return png.Encode(w, img)
	case FormatGIF:
		return gif.Encode(w, img, nil)
	case FormatBMP:
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, format)
}

// flatten draws img onto an opaque white background for JPEG output.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

// replace swaps path's content for data, keeping a backup until the new
// file is in place.
func replace(path string, data []byte) error {
	backup := path + ".bak"
	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		os.Remove(path)
		if rerr := os.Rename(backup, path); rerr != nil {
			return errors.Join(fmt.Errorf("write: %w", err), fmt.Errorf("restore: %w", rerr))
		}
		return fmt.Errorf("write: %w", err)
	}
	return os.Remove(backup)
}
