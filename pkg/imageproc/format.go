package imageproc

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DetectFormat resolves a short format tag ("jpeg", "png", "gif", "webp")
// from the HTTP response's Content-Type header, falling back to the
// download URL's extension, and as a last resort sniffing magic bytes via
// mimetype (spec.md §4.6).
func DetectFormat(contentType, downloadURL string, data []byte) string {
	if f := formatFromContentType(contentType); f != "" {
		return f
	}
	if f := formatFromExtension(downloadURL); f != "" {
		return f
	}
	mt := mimetype.Detect(data)
	return formatFromContentType(mt.String())
}

func formatFromContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	ct, _, _ = strings.Cut(ct, ";")
	switch ct {
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return ""
	}
}

func formatFromExtension(rawURL string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(stripQuery(rawURL)), "."))
	switch ext {
	case "jpg", "jpeg":
		return "jpeg"
	case "png":
		return "png"
	case "gif":
		return "gif"
	case "webp":
		return "webp"
	default:
		return ""
	}
}

func stripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
