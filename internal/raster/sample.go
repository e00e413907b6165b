package raster

import (
	"math"
	"unsafe"
)

// Sample is the set of channel encodings the core operates on.
type Sample interface {
	~uint8 | ~uint16 | ~uint32 | ~float32 | ~float64
}

// FromFloat converts v to T. Integer types are rounded to nearest and
// clamped to [0, max]; they never wrap. Float types store v unchanged.
func FromFloat[T Sample](v float64) T {
	var z T
	switch any(z).(type) {
	case uint8:
		return T(clampRound(v, 255))
	case uint16:
		return T(clampRound(v, 65535))
	case uint32:
		return T(clampRound(v, 4294967295))
	}
	return T(v)
}

func clampRound(v, max float64) float64 {
	if !(v > 0) { // NaN lands here too
		return 0
	}
	if v >= max {
		return max
	}
	return math.Floor(v + 0.5)
}

// RowSamples reinterprets a row buffer as a slice of T. The row must have
// been allocated by an Image whose format uses T.
func RowSamples[T Sample](row []byte) []T {
	if len(row) == 0 {
		return nil
	}
	var z T
	size := int(unsafe.Sizeof(z))
	return unsafe.Slice((*T)(unsafe.Pointer(&row[0])), len(row)/size)
}

// ReadSample returns sample i of row as float64, whatever its encoding.
func ReadSample(row []byte, t SampleType, i int) float64 {
	switch t {
	case SampleUint8:
		return float64(row[i])
	case SampleUint16:
		return float64(RowSamples[uint16](row)[i])
	case SampleUint32:
		return float64(RowSamples[uint32](row)[i])
	case SampleFloat32:
		return float64(RowSamples[float32](row)[i])
	case SampleFloat64:
		return RowSamples[float64](row)[i]
	}
	return 0
}

// WriteSample stores v into sample i of row with the rounding and clamping
// rules of FromFloat.
func WriteSample(row []byte, t SampleType, i int, v float64) {
	switch t {
	case SampleUint8:
		row[i] = FromFloat[uint8](v)
	case SampleUint16:
		RowSamples[uint16](row)[i] = FromFloat[uint16](v)
	case SampleUint32:
		RowSamples[uint32](row)[i] = FromFloat[uint32](v)
	case SampleFloat32:
		RowSamples[float32](row)[i] = float32(v)
	case SampleFloat64:
		RowSamples[float64](row)[i] = v
	}
}
