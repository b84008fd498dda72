package convert

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // decode-only
)

const defaultJPEGQuality = 90

// Image is the pure-Go conversion function: decode, apply per-task options,
// encode. Safe for concurrent use with disjoint arguments.
type Image struct {
	// JPEGQuality is the default quality used when a task carries no
	// "quality" option.
	JPEGQuality int
	// MaxInputSize rejects oversized inputs when > 0.
	MaxInputSize int64
}

func NewImage(jpegQuality int, maxInputSize int64) *Image {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = defaultJPEGQuality
	}
	return &Image{JPEGQuality: jpegQuality, MaxInputSize: maxInputSize}
}

// Convert decodes inputPath, applies the task options and encodes to the
// format implied by outputPath's extension. The returned map carries
// diagnostics for logging. Options understood: quality (jpeg), compression
// (tiff: none/deflate/lzw), grayscale, resize (WxH), orient (apply EXIF
// orientation).
func (c *Image) Convert(ctx context.Context, inputPath, outputPath string, options map[string]string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stat, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("input file does not exist: %s", inputPath)
	}
	if c.MaxInputSize > 0 && stat.Size() > c.MaxInputSize {
		return nil, fmt.Errorf("input file size %d exceeds limit of %d bytes", stat.Size(), c.MaxInputSize)
	}

	// Canonicalize through the format table so alias spellings (.jpeg,
	// .tiff) pick the same encoder as their short forms.
	outExt, ok := OutputExtension(filepath.Ext(outputPath))
	if !ok {
		return nil, fmt.Errorf("unsupported output format: %q", filepath.Ext(outputPath))
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	img, srcFormat, err := image.Decode(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(inputPath), err)
	}

	img, err = c.applyOptions(img, inputPath, options)
	if err != nil {
		return nil, err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	if err := c.encode(out, img, outExt, options); err != nil {
		out.Close()
		// Leave no partial output behind.
		os.Remove(outputPath)
		return nil, fmt.Errorf("encode %s: %w", outExt, err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("close output: %w", err)
	}

	b := img.Bounds()
	return map[string]string{
		"inputFormat":  srcFormat,
		"outputFormat": strings.TrimPrefix(outExt, "."),
		"width":        strconv.Itoa(b.Dx()),
		"height":       strconv.Itoa(b.Dy()),
	}, nil
}

func (c *Image) applyOptions(img image.Image, inputPath string, options map[string]string) (image.Image, error) {
	if isTrue(options["orient"]) {
		// Best effort: inputs without EXIF keep their pixel order.
		if o, err := Orientation(inputPath); err == nil && o > 1 {
			img = reorient(img, o)
		}
	}
	if spec := options["resize"]; spec != "" {
		w, h, err := parseResize(spec)
		if err != nil {
			return nil, err
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
		img = dst
	}
	if isTrue(options["grayscale"]) {
		gray := image.NewGray(img.Bounds())
		xdraw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, xdraw.Src)
		img = gray
	}
	return img, nil
}

func (c *Image) encode(w io.Writer, img image.Image, ext string, options map[string]string) error {
	switch ext {
	case ".png":
		return png.Encode(w, img)
	case ".jpg":
		q := c.JPEGQuality
		if s := options["quality"]; s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 100 {
				return fmt.Errorf("invalid quality %q", s)
			}
			q = v
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	case ".gif":
		return gif.Encode(w, img, nil)
	case ".bmp":
		return bmp.Encode(w, toNRGBA(img))
	case ".tif":
		comp := tiff.Deflate
		switch options["compression"] {
		case "", "deflate":
		case "none":
			comp = tiff.Uncompressed
		case "lzw":
			comp = tiff.LZW
		default:
			return fmt.Errorf("invalid compression %q", options["compression"])
		}
		return tiff.Encode(w, img, &tiff.Options{Compression: comp, Predictor: comp == tiff.LZW})
	case ".pdf":
		return encodePDF(w, img)
	}
	return fmt.Errorf("unsupported output format: %q", ext)
}

func parseResize(spec string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(spec), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid resize %q, want WxH", spec)
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w < 1 || h < 1 {
		return 0, 0, fmt.Errorf("invalid resize %q, want WxH", spec)
	}
	return w, h, nil
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}

func toNRGBA(img image.Image) *image.NRGBA {
	if m, ok := img.(*image.NRGBA); ok {
		return m
	}
	dst := image.NewNRGBA(img.Bounds())
	xdraw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, xdraw.Src)
	return dst
}

// reorient rewrites pixels for the common EXIF orientations. Mirrored
// variants (2, 4, 5, 7) are rare in camera output and pass through.
func reorient(img image.Image, orientation int) image.Image {
	b := img.Bounds()
	switch orientation {
	case 3: // rotated 180
		dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				dst.Set(b.Max.X-1-x, b.Max.Y-1-y, img.At(x, y))
			}
		}
		return dst
	case 6: // rotate 90 clockwise
		dst := image.NewNRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				dst.Set(b.Max.Y-1-y, x-b.Min.X, img.At(x, y))
			}
		}
		return dst
	case 8: // rotate 270 clockwise
		dst := image.NewNRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				dst.Set(y-b.Min.Y, b.Max.X-1-x, img.At(x, y))
			}
		}
		return dst
	}
	return img
}
