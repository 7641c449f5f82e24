package node

import "math"

// EncodeElevation quantizes h in [0, maxHeight] into the valid R16 range 1..65535.
func EncodeElevation(h, maxHeight float64) uint16 {
	if maxHeight <= 0 {
		return 1
	}
	t := h / maxHeight
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return uint16(1 + math.Round(t*65534))
}

// DecodeElevation reverses EncodeElevation. ok is false for nodata.
func DecodeElevation(v uint16, maxHeight float64) (h float64, ok bool) {
	if v == NoDataR16 {
		return 0, false
	}
	return float64(v-1) / 65534 * maxHeight, true
}
