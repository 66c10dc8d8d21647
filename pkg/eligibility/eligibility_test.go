package eligibility

import (
	"testing"

	"github.com/fallpaper/fallpaper/pkg/store"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func baseDevice() *store.Device {
	return &store.Device{
		DisplayName:     "Test Device",
		Slug:            "test-device",
		NativeWidth:     1080,
		NativeHeight:    1920,
		AspectTolerance: 0.02,
		NSFWPolicy:      store.NSFWReject,
		Enabled:         true,
	}
}

func TestEligibleDisabledDeviceWins(t *testing.T) {
	d := baseDevice()
	d.Enabled = false
	d.NSFWPolicy = store.NSFWRequire // would also fail, but disabled must win

	ok, reason := Eligible(d, ImageMeta{Width: 1080, Height: 1920, NSFW: store.NSFWFlagExplicit})
	if ok {
		t.Fatal("expected disabled device to be ineligible")
	}
	if reason != ReasonDeviceDisabled {
		t.Errorf("expected %q, got %q", ReasonDeviceDisabled, reason)
	}
}

func TestEligibleNSFWPolicyReject(t *testing.T) {
	d := baseDevice()
	d.NSFWPolicy = store.NSFWReject

	ok, reason := Eligible(d, ImageMeta{Width: 1080, Height: 1920, NSFW: store.NSFWFlagExplicit})
	if ok || reason != ReasonNSFWPolicy {
		t.Errorf("expected nsfw rejection, got ok=%v reason=%q", ok, reason)
	}

	ok, _ = Eligible(d, ImageMeta{Width: 1080, Height: 1920, NSFW: store.NSFWFlagSafe})
	if !ok {
		t.Error("expected safe image to pass reject policy")
	}
}

func TestEligibleNSFWPolicyRequire(t *testing.T) {
	d := baseDevice()
	d.NSFWPolicy = store.NSFWRequire

	ok, reason := Eligible(d, ImageMeta{Width: 1080, Height: 1920, NSFW: store.NSFWFlagSafe})
	if ok || reason != ReasonNSFWPolicy {
		t.Errorf("expected nsfw rejection for non-explicit image, got ok=%v reason=%q", ok, reason)
	}

	ok, _ = Eligible(d, ImageMeta{Width: 1080, Height: 1920, NSFW: store.NSFWFlagExplicit})
	if !ok {
		t.Error("expected explicit image to pass require policy")
	}
}

func TestEligibleAspectRatioOutOfTolerance(t *testing.T) {
	d := baseDevice() // 1080x1920, ratio 0.5625, tolerance 0.02

	ok, reason := Eligible(d, ImageMeta{Width: 1920, Height: 1080, NSFW: store.NSFWFlagSafe})
	if ok || reason != ReasonAspectRatio {
		t.Errorf("expected aspect ratio rejection, got ok=%v reason=%q", ok, reason)
	}
}

func TestEligibleAspectRatioWithinTolerance(t *testing.T) {
	d := baseDevice()

	ok, reason := Eligible(d, ImageMeta{Width: 1078, Height: 1920, NSFW: store.NSFWFlagSafe})
	if !ok {
		t.Errorf("expected slight aspect deviation within tolerance to pass, got reason=%q", reason)
	}
}

func TestEligibleWidthBounds(t *testing.T) {
	d := baseDevice()
	d.MinWidth = intPtr(1000)
	d.MaxWidth = intPtr(2000)

	ok, reason := Eligible(d, ImageMeta{Width: 500, Height: 889, NSFW: store.NSFWFlagSafe})
	if ok || reason != ReasonWidthBounds {
		t.Errorf("expected width bounds rejection for too-small image, got ok=%v reason=%q", ok, reason)
	}
}

func TestEligibleHeightBounds(t *testing.T) {
	d := baseDevice()
	d.MinHeight = intPtr(500)
	d.MaxHeight = intPtr(1000)

	ok, reason := Eligible(d, ImageMeta{Width: 1080, Height: 1920, NSFW: store.NSFWFlagSafe})
	if ok || reason != ReasonHeightBounds {
		t.Errorf("expected height bounds rejection, got ok=%v reason=%q", ok, reason)
	}
}

func TestEligibleFilesizeBounds(t *testing.T) {
	d := baseDevice()
	d.MinFilesize = int64Ptr(1024)
	d.MaxFilesize = int64Ptr(1024 * 1024)

	ok, reason := Eligible(d, ImageMeta{Width: 1080, Height: 1920, Filesize: 10, NSFW: store.NSFWFlagSafe})
	if ok || reason != ReasonFilesizeBounds {
		t.Errorf("expected filesize bounds rejection, got ok=%v reason=%q", ok, reason)
	}
}

func TestEligibleZeroDimensionsSkipAspectAndBoundsChecks(t *testing.T) {
	d := baseDevice()
	d.MinWidth = intPtr(1000)

	ok, reason := Eligible(d, ImageMeta{Width: 0, Height: 0, NSFW: store.NSFWFlagSafe})
	if !ok {
		t.Errorf("expected pre-download candidate with unknown dimensions to pass, got reason=%q", reason)
	}
}

func TestEligibleFullyEligible(t *testing.T) {
	d := baseDevice()
	ok, reason := Eligible(d, ImageMeta{Width: 1080, Height: 1920, Filesize: 2048, NSFW: store.NSFWFlagSafe})
	if !ok || reason != ReasonNone {
		t.Errorf("expected fully eligible, got ok=%v reason=%q", ok, reason)
	}
}

func TestFindEligibleDevicesFiltersSubset(t *testing.T) {
	eligible := baseDevice()
	eligible.Slug = "eligible"

	ineligible := baseDevice()
	ineligible.Slug = "ineligible"
	ineligible.Enabled = false

	devices := []*store.Device{eligible, ineligible}
	got := FindEligibleDevices(devices, ImageMeta{Width: 1080, Height: 1920, NSFW: store.NSFWFlagSafe})

	if len(got) != 1 || got[0].Slug != "eligible" {
		t.Errorf("expected only the eligible device, got %+v", got)
	}
}
