package audio

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// EncodeUlaw compresses one sample to G.711 µ-law.
func EncodeUlaw(s int16) byte {
	v := int(s)
	sign := 0
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > ulawClip {
		v = ulawClip
	}
	v += ulawBias
	exp := 7
	for mask := 0x4000; v&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mantissa := (v >> (exp + 3)) & 0x0F
	return ^byte(sign | exp<<4 | mantissa)
}

// DecodeUlaw expands one G.711 µ-law byte.
func DecodeUlaw(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exp := int(b>>4) & 0x07
	mantissa := int(b & 0x0F)
	v := ((mantissa << 3) + ulawBias) << exp
	v -= ulawBias
	if sign != 0 {
		return int16(-v)
	}
	return int16(v)
}

func EncodeUlawFrame(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = EncodeUlaw(s)
	}
	return out
}

func DecodeUlawFrame(payload []byte) []int16 {
	out := make([]int16, len(payload))
	for i, b := range payload {
		out[i] = DecodeUlaw(b)
	}
	return out
}
