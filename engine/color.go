package engine

import "math"

func linearToSRGB(v float32) float32 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return float32(1.055*math.Pow(float64(v), 1/2.4) - 0.055)
}

func toByte(v float32) uint8 {
	return uint8(max(0, min(v, 1))*255 + 0.5)
}

// FromByte converts an 8-bit channel to [0,1].
func FromByte(b uint8) float32 {
	return float32(b) / 255
}
