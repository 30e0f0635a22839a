package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestResamplerEmitsFrameOnceChunkIsFull(t *testing.T) {
	var frames [][]byte
	r := NewResampler(48000, func(frame []byte) { frames = append(frames, frame) })

	if got := r.ChunkSize(); got != 6144 {
		t.Fatalf("expected chunk size 6144, got %d", got)
	}

	r.Write(make([]float32, 6143))
	if len(frames) != 0 {
		t.Fatalf("expected no frame before chunk is full, got %d", len(frames))
	}

	r.Write(make([]float32, 1))
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}
	if got := len(frames[0]); got != DefaultFrameSize*2 {
		t.Fatalf("expected %d bytes per frame, got %d", DefaultFrameSize*2, got)
	}
	if got := r.Buffered(); got != 0 {
		t.Fatalf("expected empty queue after emission, got %d samples", got)
	}
}

func TestResamplerEmitsMultipleFramesFromOneWrite(t *testing.T) {
	var frames int
	r := NewResampler(32000, func([]byte) { frames++ }, WithFrameSize(4))

	r.Write(make([]float32, 8*3+5))

	if frames != 3 {
		t.Fatalf("expected 3 frames, got %d", frames)
	}
	if got := r.Buffered(); got != 5 {
		t.Fatalf("expected 5 leftover samples, got %d", got)
	}
}

func TestResamplerPassesThroughAtEqualRates(t *testing.T) {
	var frame []byte
	r := NewResampler(16000, func(f []byte) { frame = f }, WithFrameSize(4))

	r.Write([]float32{0, 0.5, -0.5, 1})

	want := []int16{0, 16384, -16384, 32767}
	got := DecodePCM16(frame)
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestResampleLinearInterpolation(t *testing.T) {
	tests := []struct {
		name  string
		in    []float32
		ratio float64
		want  []float32
	}{
		{name: "downsample by two", in: []float32{0, 1, 2, 3}, ratio: 2, want: []float32{0, 2}},
		{name: "fractional ratio", in: []float32{0, 1, 2, 3}, ratio: 1.5, want: []float32{0, 1.5}},
		{name: "upsample clamps to last sample", in: []float32{0, 1}, ratio: 0.5, want: []float32{0, 0.5, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resample(tt.in, tt.ratio)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d samples, got %d", len(tt.want), len(got))
			}
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Fatalf("sample %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestQuantizePCM16(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{in: 0, want: 0},
		{in: 1, want: 32767},
		{in: -1, want: -32768},
		{in: 1.7, want: 32767},
		{in: -3, want: -32768},
		{in: 0.25, want: 8192},
		{in: -0.25, want: -8192},
		{in: float32(math.NaN()), want: 0},
	}

	for _, tt := range tests {
		if got := QuantizePCM16(tt.in); got != tt.want {
			t.Fatalf("QuantizePCM16(%v): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func TestWriteFloat32LESkipsMalformedBlocks(t *testing.T) {
	var frames int
	r := NewResampler(16000, func([]byte) { frames++ }, WithFrameSize(2))

	r.WriteFloat32LE([]byte{1, 2, 3})
	r.WriteFloat32LE(nil)
	if got := r.Buffered(); got != 0 {
		t.Fatalf("expected malformed blocks to be skipped, got %d buffered", got)
	}

	block := make([]byte, 8)
	binary.LittleEndian.PutUint32(block[0:], math.Float32bits(0.5))
	binary.LittleEndian.PutUint32(block[4:], math.Float32bits(-0.5))
	r.WriteFloat32LE(block)
	if frames != 1 {
		t.Fatalf("expected one frame from a valid block, got %d", frames)
	}
}

func TestResamplerWithInvalidInputRateDropsInput(t *testing.T) {
	var frames int
	r := NewResampler(0, func([]byte) { frames++ })

	r.Write(make([]float32, 10000))

	if frames != 0 || r.Buffered() != 0 {
		t.Fatalf("expected input to be dropped, got %d frames and %d buffered", frames, r.Buffered())
	}
}
