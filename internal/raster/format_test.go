package raster

import (
	"errors"
	"testing"
)

func TestFormat_Derived(t *testing.T) {
	tests := []struct {
		name  string
		f     Format
		bpp   int
		max   float64
		stype SampleType
	}{
		{"grey8", Grey8(), 1, 255, SampleUint8},
		{"rgb16", RGB16(), 6, 65535, SampleUint16},
		{"rgba8", RGBA8(), 4, 255, SampleUint8},
		{"cmyk32", CMYK8().Set32bit(), 16, 4294967295, SampleUint32},
		{"labflt", LabFloat(), 12, 1, SampleFloat32},
		{"labdbl", LabDouble(), 24, 1, SampleFloat64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.BytesPerPixel(); got != tt.bpp {
				t.Errorf("BytesPerPixel: got %d, want %d", got, tt.bpp)
			}
			if got := tt.f.MaxScaleValue(); got != tt.max {
				t.Errorf("MaxScaleValue: got %v, want %v", got, tt.max)
			}
			if got := tt.f.SampleType(); got != tt.stype {
				t.Errorf("SampleType: got %v, want %v", got, tt.stype)
			}
			if err := tt.f.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestFormat_LastMutatorWins(t *testing.T) {
	f := RGB8().Set16bit().SetDouble().Set8bit()
	if !f.Is8bit() {
		t.Errorf("got %s, want 8-bit", f)
	}
	g := f.SetPremultipliedAlpha(true)
	if f.IsPremultipliedAlpha() {
		t.Error("setter mutated the receiver")
	}
	if !g.IsPremultipliedAlpha() {
		t.Error("setter result lost the flag")
	}
}

func TestFormat_SetColourModelChannels(t *testing.T) {
	f := Format{}.Set8bit().SetColourModel(ModelCMYK)
	if f.Channels() != 4 {
		t.Errorf("CMYK channels: got %d", f.Channels())
	}
	f = f.SetColourModel(ModelGreyscale)
	if f.Channels() != 1 {
		t.Errorf("grey channels: got %d", f.Channels())
	}
	f = f.SetColourModel(ModelMCH6)
	if f.Channels() != 6 {
		t.Errorf("MCH6 channels: got %d", f.Channels())
	}
	f = RGB8().SetColourModel(ModelAny)
	if f.Channels() != 3 {
		t.Errorf("Any keeps channels: got %d", f.Channels())
	}
}

func TestFormat_ValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		f    Format
	}{
		{"rgb with 1 channel", RGB8().SetChannels(1)},
		{"no channels", Format{}.Set8bit()},
		{"too many channels", Format{}.Set8bit().SetChannels(12).SetExtraChannels(4)},
		{"half float", Format{model: ModelRGB, channels: 3, bytes: 2, float: true}},
	}
	for _, tt := range tests {
		if err := tt.f.Validate(); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("%s: got %v, want ErrTypeMismatch", tt.name, err)
		}
	}
}

func TestFormat_String(t *testing.T) {
	if s := RGBA16().SetPremultipliedAlpha(true).String(); s != "RGBA16 premult" {
		t.Errorf("got %q", s)
	}
	if s := LabDouble().String(); s != "Lab DBL" {
		t.Errorf("got %q", s)
	}
}
