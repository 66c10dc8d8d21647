package imageproc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fallpaper/fallpaper/pkg/logging"
	"github.com/fallpaper/fallpaper/pkg/store"
)

func newTestProcessor(t *testing.T) (*Processor, string, string) {
	t.Helper()
	imageDir := filepath.Join(t.TempDir(), "images")
	tempDir := filepath.Join(t.TempDir(), "tmp")
	p := New(nil, nil, logging.NewDefault(), imageDir, tempDir)
	return p, imageDir, tempDir
}

func TestStageWritesToTempDir(t *testing.T) {
	p, _, tempDir := newTestProcessor(t)

	path, err := p.stage([]byte("payload"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if filepath.Dir(path) != tempDir {
		t.Errorf("expected staged file under %s, got %s", tempDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("unexpected staged content: %q", data)
	}
}

func TestFanOutSingleDeviceRenames(t *testing.T) {
	p, imageDir, _ := newTestProcessor(t)

	staged, err := p.stage([]byte("bytes"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	devices := []*store.Device{{ID: "dev1", Slug: "pixel-8"}}
	paths, err := p.fanOut("img1", "jpeg", staged, devices)
	if err != nil {
		t.Fatalf("fanOut: %v", err)
	}

	want := filepath.Join(imageDir, "pixel-8", "img1.jpeg")
	if paths["dev1"] != want {
		t.Errorf("got path %q, want %q", paths["dev1"], want)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Error("expected staged file to be renamed away, not copied")
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected destination file to exist: %v", err)
	}
}

func TestFanOutMultipleDevicesCopiesRest(t *testing.T) {
	p, imageDir, _ := newTestProcessor(t)

	staged, err := p.stage([]byte("shared-bytes"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	devices := []*store.Device{
		{ID: "dev1", Slug: "a"},
		{ID: "dev2", Slug: "b"},
	}
	paths, err := p.fanOut("img2", "png", staged, devices)
	if err != nil {
		t.Fatalf("fanOut: %v", err)
	}

	for _, id := range []string{"dev1", "dev2"} {
		data, err := os.ReadFile(paths[id])
		if err != nil {
			t.Fatalf("read fanned-out file for %s: %v", id, err)
		}
		if string(data) != "shared-bytes" {
			t.Errorf("unexpected content for %s: %q", id, data)
		}
	}
	secondPath := filepath.Join(imageDir, "b", "img2.png")
	if paths["dev2"] != secondPath {
		t.Errorf("got %q, want %q", paths["dev2"], secondPath)
	}
}

func TestFanOutRejectsPathTraversalSlug(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	staged, err := p.stage([]byte("bytes"))
	if err != nil {
		t.Fatalf("stage: %v", err)
	}

	devices := []*store.Device{{ID: "evil", Slug: "../../etc"}}
	if _, err := p.fanOut("img3", "jpeg", staged, devices); err == nil {
		t.Error("expected path traversal slug to be rejected")
	}
}
