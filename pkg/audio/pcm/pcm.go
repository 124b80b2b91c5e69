// Package pcm holds helpers for 16-bit signed little-endian PCM, the only
// audio format the recitation service accepts from clients.
package pcm

import (
	"encoding/binary"
	"math"
)

// BitsPerSample is fixed at 16.
const BitsPerSample = 16

// Format describes a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of f, or zero for an invalid format.
func (f Format) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.Channels * BitsPerSample / 8
}

// DurationMs returns the duration of n bytes of f in milliseconds.
func (f Format) DurationMs(n int) int {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return n * 1000 / bps
}

// RMS returns the root-mean-square sample value of data, in sample units
// (0–32767). Buffers shorter than one sample yield zero.
func RMS(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(data[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// ToFloat32Mono converts data to float samples in [-1, 1], averaging the
// channels of each frame. A trailing partial frame is ignored.
func ToFloat32Mono(data []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(data) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			off := (i*channels + ch) * 2
			sum += float32(int16(binary.LittleEndian.Uint16(data[off:]))) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// EncodeWAV wraps data in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(data []byte, f Format) []byte {
	blockAlign := f.Channels * BitsPerSample / 8
	buf := make([]byte, 44+len(data))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(data)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(data)))
	copy(buf[44:], data)
	return buf
}
