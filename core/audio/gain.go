package audio

import "encoding/binary"

// ApplyGain scales little-endian linear16 samples in place and clamps them
// to the int16 range. A gain of 1 leaves the audio untouched, a trailing odd
// byte is left as is.
func ApplyGain(pcm []byte, gain float64) {
	if gain == 1 {
		return
	}
	if gain < 0 {
		gain = 0
	}

	for i := 0; i+1 < len(pcm); i += 2 {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		scaled := sample * gain
		switch {
		case scaled > 32767:
			scaled = 32767
		case scaled < -32768:
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(scaled)))
	}
}

// StripWAVHeader returns the PCM payload of a RIFF/WAVE container, or the
// input unchanged when it is not one.
func StripWAVHeader(data []byte) []byte {
	const riffHeaderSize = 12
	if len(data) < riffHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data
	}

	offset := riffHeaderSize
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		offset += 8
		if chunkID == "data" {
			end := offset + chunkSize
			if end > len(data) || chunkSize == 0 {
				end = len(data)
			}
			return data[offset:end]
		}
		offset += chunkSize + chunkSize%2
	}

	return data
}
