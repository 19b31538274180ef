package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Float32ToPCM16 converts normalized samples in [-1, 1] to 16-bit signed
// little-endian PCM. Out-of-range input is clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768
		switch {
		case v > 32767:
			v = 32767
		case v < -32768:
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat32 converts 16-bit signed little-endian PCM into normalized
// samples. A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

// EncodeBase64 is the wire encoding for PCM frames in JSON payloads.
func EncodeBase64(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeBase64 reverses EncodeBase64 and rejects payloads that are not whole
// 16-bit samples.
func DecodeBase64(data string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("odd PCM16 byte count: %d", len(pcm))
	}
	return pcm, nil
}
