package imageproc

import "testing"

func TestDetectFormatFromContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/jpeg", "jpeg"},
		{"image/jpeg; charset=binary", "jpeg"},
		{"image/png", "png"},
		{"image/gif", "gif"},
		{"image/webp", "webp"},
	}
	for _, tt := range tests {
		got := DetectFormat(tt.contentType, "https://example.com/x", nil)
		if got != tt.want {
			t.Errorf("DetectFormat(%q, ...) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestDetectFormatFallsBackToExtension(t *testing.T) {
	got := DetectFormat("", "https://example.com/photo.png?w=100", nil)
	if got != "png" {
		t.Errorf("expected extension fallback to png, got %q", got)
	}
}

func TestDetectFormatFallsBackToSniffing(t *testing.T) {
	png := buildPNG(1, 1)
	got := DetectFormat("", "https://example.com/no-extension", png)
	if got != "png" {
		t.Errorf("expected magic-byte sniffing to detect png, got %q", got)
	}
}

func TestDetectFormatUnknownContentTypeIgnored(t *testing.T) {
	got := DetectFormat("application/octet-stream", "https://example.com/file.gif", nil)
	if got != "gif" {
		t.Errorf("expected unknown content-type to fall through to extension, got %q", got)
	}
}
