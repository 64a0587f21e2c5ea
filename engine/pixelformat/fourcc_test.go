package pixelformat

import "testing"

func TestMakeAndString(t *testing.T) {
	if got := NV12.String(); got != "NV12" {
		t.Errorf("NV12.String() = %q, want %q", got, "NV12")
	}
	if got := RAW.String(); got != "RAW " {
		t.Errorf("RAW.String() = %q, want %q", got, "RAW ")
	}
}

func TestIsRawStreamFormat(t *testing.T) {
	cases := []struct {
		name string
		f    FourCC
		want bool
	}{
		{"nv12 raw", NV12, true},
		{"i420 raw", I420, true},
		{"rgba raw", RGBA, true},
		{"jpeg not raw", JPEG, false},
		{"raw still not stream", RAW, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRawStreamFormat(tc.f); got != tc.want {
				t.Errorf("IsRawStreamFormat(%s) = %v, want %v", tc.f, got, tc.want)
			}
		})
	}
}

func TestIsStillFormat(t *testing.T) {
	if !IsStillFormat(JPEG) {
		t.Error("JPEG should be a valid still format")
	}
	if !IsStillFormat(RAW) {
		t.Error("RAW should be a valid still format")
	}
	if !IsStillFormat(NV12) {
		t.Error("NV12 should also be usable as a still format")
	}
	if IsStillFormat(Make('X', 'X', 'X', 'X')) {
		t.Error("unknown fourcc should not be a valid still format")
	}
}
