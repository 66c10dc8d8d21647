// Package eligibility implements C3: the pure function deciding whether an
// image satisfies a device's constraints (spec.md §4.3). No I/O, no
// third-party dependency — the component's own contract ("deterministic;
// no I/O") rules out bringing in anything heavier than arithmetic.
package eligibility

import (
	"math"

	"github.com/fallpaper/fallpaper/pkg/store"
)

// Reason is one of the stable rejection strings spec.md §8's "eligibility
// determinism" property requires ("Rejection reasons are stable strings
// from the enumerated set").
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonDeviceDisabled  Reason = "device disabled"
	ReasonNSFWPolicy      Reason = "nsfw policy mismatch"
	ReasonAspectRatio     Reason = "aspect ratio out of tolerance"
	ReasonWidthBounds     Reason = "width out of bounds"
	ReasonHeightBounds    Reason = "height out of bounds"
	ReasonFilesizeBounds  Reason = "filesize out of bounds"
)

// ImageMeta carries the subset of an image's attributes eligibility needs.
// Width/Height may be zero when not yet known (pre-download candidate);
// NSFW defaults to store.NSFWFlagUnknown.
type ImageMeta struct {
	Width    int
	Height   int
	Filesize int64
	NSFW     store.NSFWFlag
}

// Eligible evaluates the device's constraints against img in the fixed
// order spec.md §4.3 names: disabled, NSFW policy, aspect ratio, dimension
// bounds, filesize bounds. First failure wins.
func Eligible(device *store.Device, img ImageMeta) (bool, Reason) {
	if !device.Enabled {
		return false, ReasonDeviceDisabled
	}

	switch device.NSFWPolicy {
	case store.NSFWReject:
		if img.NSFW == store.NSFWFlagExplicit {
			return false, ReasonNSFWPolicy
		}
	case store.NSFWRequire:
		if img.NSFW != store.NSFWFlagExplicit {
			return false, ReasonNSFWPolicy
		}
	}

	if img.Width > 0 && img.Height > 0 {
		deviceRatio := float64(device.NativeWidth) / float64(device.NativeHeight)
		imageRatio := float64(img.Width) / float64(img.Height)
		if math.Abs(deviceRatio-imageRatio) > device.AspectTolerance {
			return false, ReasonAspectRatio
		}

		if device.MinWidth != nil && img.Width < *device.MinWidth {
			return false, ReasonWidthBounds
		}
		if device.MaxWidth != nil && img.Width > *device.MaxWidth {
			return false, ReasonWidthBounds
		}
		if device.MinHeight != nil && img.Height < *device.MinHeight {
			return false, ReasonHeightBounds
		}
		if device.MaxHeight != nil && img.Height > *device.MaxHeight {
			return false, ReasonHeightBounds
		}
	}

	if img.Filesize > 0 {
		if device.MinFilesize != nil && img.Filesize < *device.MinFilesize {
			return false, ReasonFilesizeBounds
		}
		if device.MaxFilesize != nil && img.Filesize > *device.MaxFilesize {
			return false, ReasonFilesizeBounds
		}
	}

	return true, ReasonNone
}

// FindEligibleDevices returns the subset of devices for which Eligible is
// true (spec.md §4.3's findEligibleDevices).
func FindEligibleDevices(devices []*store.Device, img ImageMeta) []*store.Device {
	var out []*store.Device
	for _, d := range devices {
		if ok, _ := Eligible(d, img); ok {
			out = append(out, d)
		}
	}
	return out
}
