package audio

import "encoding/binary"

var muLawToPCMTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		muLawToPCMTable[i] = decodeMuLawByte(byte(i))
	}
}

// MuLawToPCM16K converts 8 kHz mu-law telephone audio to 16 kHz PCM16 by
// decoding each byte and duplicating the sample.
func MuLawToPCM16K(muLaw []byte) []byte {
	pcm := make([]byte, len(muLaw)*4)
	for i, b := range muLaw {
		v := uint16(muLawToPCMTable[b])
		binary.LittleEndian.PutUint16(pcm[i*4:], v)
		binary.LittleEndian.PutUint16(pcm[i*4+2:], v)
	}
	return pcm
}

// PCM24KToMuLaw downsamples 24 kHz PCM16 to 8 kHz by taking every third
// sample and encodes it as mu-law.
func PCM24KToMuLaw(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, 0, n/3+1)
	for i := 0; i < n; i += 3 {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out = append(out, MuLawEncode(s))
	}
	return out
}

// MuLawDecode returns the linear sample for one mu-law byte.
func MuLawDecode(b byte) int16 { return muLawToPCMTable[b] }

// Sun Microsystems G.711 reference decoding.
func decodeMuLawByte(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	sample := int16((int32(mantissa)<<3 + 0x84) << exponent)
	sample -= 0x84

	if sign != 0 {
		return -sample
	}
	return sample
}

// MuLawEncode compresses one linear sample to mu-law.
func MuLawEncode(pcm int16) byte {
	const (
		bias = 0x84
		clip = 32635
	)

	sign := (pcm >> 8) & 0x80
	if pcm < 0 {
		if pcm == -32768 {
			pcm = -32767
		}
		pcm = -pcm
	}
	if pcm > clip {
		pcm = clip
	}
	pcm += bias

	exponent := 7
	for mask := 0x4000; (pcm&int16(mask)) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (pcm >> (exponent + 3)) & 0x0F

	return ^byte(sign | (int16(exponent) << 4) | mantissa)
}
