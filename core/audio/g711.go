package audio

import "encoding/binary"

// ToLinear16 converts audio in e's format to little-endian 16-bit PCM.
// Linear16 audio is returned as is.
func (e EncodingInfo) ToLinear16(data []byte) []byte {
	var decode func(byte) int16
	switch e.Format {
	case EncodingMulaw:
		decode = mulawToLinear
	case EncodingALaw:
		decode = alawToLinear
	default:
		return data
	}

	out := make([]byte, 2*len(data))
	for i, b := range data {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(decode(b)))
	}
	return out
}

// Linear16 is the encoding ToLinear16 produces.
func (e EncodingInfo) Linear16() EncodingInfo {
	e.Format = EncodingLinear16
	return e
}

func mulawToLinear(u byte) int16 {
	u = ^u
	exponent := (u >> 4) & 0x07
	mantissa := int(u & 0x0F)

	sample := (((mantissa << 3) + 0x84) << exponent) - 0x84
	if u&0x80 != 0 {
		return int16(-sample)
	}
	return int16(sample)
}

func alawToLinear(a byte) int16 {
	a ^= 0x55
	exponent := (a >> 4) & 0x07
	sample := int(a&0x0F) << 4

	switch exponent {
	case 0:
		sample += 8
	default:
		sample = (sample + 0x108) << (exponent - 1)
	}

	if a&0x80 != 0 {
		return int16(sample)
	}
	return int16(-sample)
}
