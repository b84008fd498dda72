package convert

import (
	"fmt"
	"image"
	"os"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

// Info is the probe result for one image file.
type Info struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Format      string  `json:"format"`
	FileSize    int64   `json:"fileSize"`
	Orientation int     `json:"orientation,omitempty"`
	DPIX        float64 `json:"dpiX,omitempty"`
	DPIY        float64 `json:"dpiY,omitempty"`
}

// Probe returns basic information about an image file without converting it.
// EXIF fields are best effort; files without EXIF report zero values there.
func (c *Image) Probe(path string) (Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("image file does not exist: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open image: %w", err)
	}
	cfg, format, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		return Info{}, fmt.Errorf("unreadable image %s: %w", path, err)
	}

	info := Info{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Format:   format,
		FileSize: stat.Size(),
	}
	if root, err := rootIfd(path); err == nil {
		if o, err := orientationTag(root); err == nil {
			info.Orientation = o
		}
		info.DPIX, info.DPIY = resolutionTags(root)
	}
	return info, nil
}

// Orientation reads the EXIF orientation (1..8) from a file, or an error when
// the file carries no usable EXIF block.
func Orientation(path string) (int, error) {
	root, err := rootIfd(path)
	if err != nil {
		return 0, err
	}
	return orientationTag(root)
}

func rootIfd(path string) (*exif.Ifd, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return nil, fmt.Errorf("EXIF not found: %w", err)
	}

	im := exifcommon.NewIfdMapping()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return nil, err
	}
	ti := exif.NewTagIndex()
	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return nil, err
	}
	return index.RootIfd, nil
}

func orientationTag(root *exif.Ifd) (int, error) {
	tags, err := root.FindTagWithName("Orientation")
	if err != nil || len(tags) == 0 {
		return 0, fmt.Errorf("orientation tag not present")
	}
	val, err := tags[0].Value()
	if err != nil {
		return 0, err
	}
	switch v := val.(type) {
	case []uint16:
		if len(v) > 0 {
			return int(v[0]), nil
		}
	case uint16:
		return int(v), nil
	}
	return 0, fmt.Errorf("unexpected orientation value type")
}

func resolutionTags(root *exif.Ifd) (dpiX, dpiY float64) {
	rational := func(name string) (float64, bool) {
		tags, err := root.FindTagWithName(name)
		if err != nil || len(tags) == 0 {
			return 0, false
		}
		val, err := tags[0].Value()
		if err != nil {
			return 0, false
		}
		if rats, ok := val.([]exifcommon.Rational); ok && len(rats) > 0 && rats[0].Denominator != 0 {
			return float64(rats[0].Numerator) / float64(rats[0].Denominator), true
		}
		return 0, false
	}

	x, okX := rational("XResolution")
	y, okY := rational("YResolution")
	if !okX && !okY {
		return 0, 0
	}

	// Unit 3 means resolution per centimeter.
	if tags, err := root.FindTagWithName("ResolutionUnit"); err == nil && len(tags) > 0 {
		if val, err := tags[0].Value(); err == nil {
			unit := uint16(0)
			switch v := val.(type) {
			case []uint16:
				if len(v) > 0 {
					unit = v[0]
				}
			case uint16:
				unit = v
			}
			if unit == 3 {
				x *= 2.54
				y *= 2.54
			}
		}
	}
	return x, y
}
