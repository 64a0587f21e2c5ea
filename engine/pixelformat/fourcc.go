// Package pixelformat defines the canonical FOURCC-style pixel format
// registry: streams are raw-only, stills may also carry compressed
// formats.
package pixelformat

// FourCC is a 32-bit pixel format code built from four ASCII characters,
// matching the convention used by V4L2 and most platform camera APIs.
type FourCC uint32

// Make packs four ASCII characters into a FourCC the same way V4L2's
// v4l2_fourcc macro does: least-significant byte first.
func Make(a, b, c, d byte) FourCC {
	return FourCC(a) | FourCC(b)<<8 | FourCC(c)<<16 | FourCC(d)<<24
}

func (f FourCC) String() string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	return string(b[:])
}

// Canonical codes.
var (
	NV12 = Make('N', 'V', '1', '2')
	I420 = Make('I', '4', '2', '0')
	RGBA = Make('R', 'G', 'B', 'A')
	JPEG = Make('J', 'P', 'E', 'G')
	RAW  = Make('R', 'A', 'W', ' ')
)

// rawStreamFormats is the set of formats a PREVIEW/VIEWFINDER stream may
// request. Streams are raw-only.
var rawStreamFormats = map[FourCC]bool{
	NV12: true,
	I420: true,
	RGBA: true,
}

// stillFormats is the set of formats a still capture may request, which
// includes the raw stream formats plus compressed/unprocessed stills.
var stillFormats = map[FourCC]bool{
	NV12: true,
	I420: true,
	RGBA: true,
	JPEG: true,
	RAW:  true,
}

// IsRawStreamFormat reports whether f is a valid streaming format.
func IsRawStreamFormat(f FourCC) bool { return rawStreamFormats[f] }

// IsStillFormat reports whether f is a valid still-capture format.
func IsStillFormat(f FourCC) bool { return stillFormats[f] }
