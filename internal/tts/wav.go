package tts

import "encoding/binary"

// EncodeWAV frames raw PCM samples with a canonical 44-byte RIFF header.
// Providers that return bare PCM use this so every artifact on disk is a
// playable WAV file.
func EncodeWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	dataSize := len(pcm)
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	byteRate := sampleRate * channels * bitsPerSample / 8
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	blockAlign := channels * bitsPerSample / 8
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// PCMDurationMS returns the playback duration of raw PCM in milliseconds.
func PCMDurationMS(pcmBytes, sampleRate, channels, bitsPerSample int) int64 {
	bytesPerSecond := sampleRate * channels * bitsPerSample / 8
	if bytesPerSecond <= 0 {
		return 0
	}
	return int64(pcmBytes) * 1000 / int64(bytesPerSecond)
}
