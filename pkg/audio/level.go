package audio

import (
	"encoding/binary"
	"math"
)

// fullScale is the largest magnitude of a 16-bit sample.
const fullScale = 32768.0

// RMS returns the root-mean-square energy of 16-bit PCM, normalised to [0,1].
// Buffers shorter than one sample yield 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / fullScale
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// DBFS converts a normalised RMS value to decibels relative to full scale.
// Silence is reported as -inf clamped to -120.
func DBFS(rms float64) float64 {
	if rms <= 0 {
		return -120
	}
	return max(20*math.Log10(rms), -120)
}
