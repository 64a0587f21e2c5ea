// Package arbitration implements profile validation and the
// priority/preemption decision engine: rig sync capture > device still
// capture > repeating stream.
package arbitration

import "cambang/engine/pixelformat"

// Intent classifies why a stream exists, which arbitration uses to rank it.
type Intent int

const (
	IntentPreview Intent = iota
	IntentViewfinder
)

func (i Intent) String() string {
	if i == IntentViewfinder {
		return "VIEWFINDER"
	}
	return "PREVIEW"
}

// StreamProfile is a normalized create_stream request.
type StreamProfile struct {
	Intent       Intent
	Width        int
	Height       int
	FormatFourCC pixelformat.FourCC
	TargetFPSMin int
	TargetFPSMax int
}

// StillProfile is a normalized still-capture profile.
type StillProfile struct {
	Width        int
	Height       int
	FormatFourCC pixelformat.FourCC
}

// Capability is the normalized capability union of a device, derived from
// its effective CameraSpec. Validation is pure and deterministic given a
// Capability and a request.
type Capability struct {
	SupportedFormats []pixelformat.FourCC
	MaxWidth         int
	MaxHeight        int
	MinFPS           int
	MaxFPS           int
}

func (c Capability) supportsFormat(f pixelformat.FourCC) bool {
	for _, s := range c.SupportedFormats {
		if s == f {
			return true
		}
	}
	return false
}

// ValidationError is the pure result of a failed profile validation; its
// Reason is one of ERR_INVALID_ARGUMENT, ERR_NOT_SUPPORTED,
// ERR_PROFILE_INCOMPATIBLE.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

const (
	ReasonInvalidArgument   = "ERR_INVALID_ARGUMENT"
	ReasonNotSupported      = "ERR_NOT_SUPPORTED"
	ReasonProfileIncompatible = "ERR_PROFILE_INCOMPATIBLE"
)

// ValidateStreamProfile checks a create_stream request against a device's
// capability union. Streams are raw-only.
func ValidateStreamProfile(req StreamProfile, cap Capability) (StreamProfile, error) {
	if req.Width <= 0 || req.Height <= 0 || req.TargetFPSMin <= 0 || req.TargetFPSMax < req.TargetFPSMin {
		return StreamProfile{}, &ValidationError{Reason: ReasonInvalidArgument}
	}
	if !pixelformat.IsRawStreamFormat(req.FormatFourCC) {
		return StreamProfile{}, &ValidationError{Reason: ReasonNotSupported}
	}
	if !cap.supportsFormat(req.FormatFourCC) {
		return StreamProfile{}, &ValidationError{Reason: ReasonNotSupported}
	}
	if req.Width > cap.MaxWidth || req.Height > cap.MaxHeight {
		return StreamProfile{}, &ValidationError{Reason: ReasonProfileIncompatible}
	}
	if req.TargetFPSMax > cap.MaxFPS || req.TargetFPSMin < cap.MinFPS {
		return StreamProfile{}, &ValidationError{Reason: ReasonProfileIncompatible}
	}
	return req, nil
}

// ValidateStillProfile checks a still-capture profile against a device's
// capability union.
func ValidateStillProfile(req StillProfile, cap Capability) (StillProfile, error) {
	if req.Width <= 0 || req.Height <= 0 {
		return StillProfile{}, &ValidationError{Reason: ReasonInvalidArgument}
	}
	if !pixelformat.IsStillFormat(req.FormatFourCC) {
		return StillProfile{}, &ValidationError{Reason: ReasonNotSupported}
	}
	if !cap.supportsFormat(req.FormatFourCC) {
		return StillProfile{}, &ValidationError{Reason: ReasonNotSupported}
	}
	if req.Width > cap.MaxWidth || req.Height > cap.MaxHeight {
		return StillProfile{}, &ValidationError{Reason: ReasonProfileIncompatible}
	}
	return req, nil
}
