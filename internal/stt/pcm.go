package stt

import "encoding/binary"

// PCM is 16-bit little-endian mono audio at SampleRate.
type PCM []byte

// Len returns the number of whole samples.
func (p PCM) Len() int { return len(p) / 2 }

// Ints returns the samples as signed integers, for encoders that take
// integer buffers.
func (p PCM) Ints() []int {
	out := make([]int, p.Len())
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(p[i*2:])))
	}
	return out
}

// Float32 returns the samples scaled to [-1, 1).
func (p PCM) Float32() []float32 {
	out := make([]float32, p.Len())
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(p[i*2:]))) / 32768.0
	}
	return out
}

// Seconds is the audio duration.
func (p PCM) Seconds() float64 {
	return float64(p.Len()) / SampleRate
}
