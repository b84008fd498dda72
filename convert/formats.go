package convert

import (
	"sort"
	"strings"
)

// Output format names accepted by the API, mapped to the extension written to
// disk. PDF is encode-only; WEBP is decode-only.
var formatExts = map[string]string{
	"png":  ".png",
	"jpeg": ".jpg",
	"jpg":  ".jpg",
	"tiff": ".tif",
	"tif":  ".tif",
	"gif":  ".gif",
	"bmp":  ".bmp",
	"pdf":  ".pdf",
}

// Extensions the decoder understands.
var inputExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".tif":  {},
	".tiff": {},
	".bmp":  {},
	".webp": {},
}

// SupportedFormats lists the output format names, sorted.
func SupportedFormats() []string {
	names := make([]string, 0, len(formatExts))
	for name := range formatExts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OutputExtension resolves a format name (case-insensitive, with or without a
// leading dot) to the extension written to disk.
func OutputExtension(format string) (string, bool) {
	ext, ok := formatExts[strings.ToLower(strings.TrimPrefix(format, "."))]
	return ext, ok
}

// InputExtensions returns a copy of the decodable extension set, keyed by
// lowercase extension including the dot.
func InputExtensions() map[string]struct{} {
	out := make(map[string]struct{}, len(inputExts))
	for ext := range inputExts {
		out[ext] = struct{}{}
	}
	return out
}
