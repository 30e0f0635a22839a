package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// Resampler turns a stream of mono float32 samples captured at an arbitrary
// rate into fixed-size PCM16 frames at the output rate.
//
// Frames are handed to onFrame synchronously from Write as soon as enough
// input has accumulated for one output frame.
type Resampler struct {
	inputRate  int
	outputRate int
	frameSize  int
	chunkSize  int

	onFrame func(frame []byte)

	queue []float32
	mu    sync.Mutex
}

type ResamplerOption func(*Resampler)

func WithOutputRate(rate int) ResamplerOption {
	return func(r *Resampler) {
		if rate > 0 {
			r.outputRate = rate
		}
	}
}

// WithFrameSize sets the number of output samples per emitted frame.
func WithFrameSize(samples int) ResamplerOption {
	return func(r *Resampler) {
		if samples > 0 {
			r.frameSize = samples
		}
	}
}

func NewResampler(inputRate int, onFrame func(frame []byte), opts ...ResamplerOption) *Resampler {
	r := &Resampler{
		inputRate:  inputRate,
		outputRate: DefaultSampleRate,
		frameSize:  DefaultFrameSize,
		onFrame:    onFrame,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.inputRate > 0 {
		r.chunkSize = int(math.Round(float64(r.frameSize) * float64(r.inputRate) / float64(r.outputRate)))
	}

	return r
}

// Ratio is the input to output sample rate ratio used for interpolation.
func (r *Resampler) Ratio() float64 {
	return float64(r.inputRate) / float64(r.outputRate)
}

// ChunkSize is the number of input samples consumed per emitted frame.
func (r *Resampler) ChunkSize() int {
	return r.chunkSize
}

func (r *Resampler) Write(samples []float32) {
	if len(samples) == 0 || r.chunkSize <= 0 {
		return
	}

	r.mu.Lock()
	r.queue = append(r.queue, samples...)
	var frames [][]byte
	for len(r.queue) >= r.chunkSize {
		chunk := r.queue[:r.chunkSize]
		frames = append(frames, EncodePCM16(Resample(chunk, r.Ratio())))
		r.queue = r.queue[r.chunkSize:]
	}
	if len(r.queue) == 0 {
		r.queue = nil
	}
	r.mu.Unlock()

	if r.onFrame == nil {
		return
	}
	for _, frame := range frames {
		r.onFrame(frame)
	}
}

// WriteFloat32LE decodes little-endian float32 capture bytes and writes them.
// Blocks that are not a whole number of samples are skipped.
func (r *Resampler) WriteFloat32LE(b []byte) {
	samples, ok := DecodeFloat32LE(b)
	if !ok {
		return
	}
	r.Write(samples)
}

// Buffered returns the number of input samples waiting for the next frame.
func (r *Resampler) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Resample converts in by linear interpolation at the given input/output
// ratio. A ratio of 1 returns the input unchanged.
func Resample(in []float32, ratio float64) []float32 {
	if ratio == 1 || len(in) == 0 {
		return in
	}

	outLength := int(math.Floor(float64(len(in)) / ratio))
	out := make([]float32, outLength)
	for i := range out {
		src := float64(i) * ratio
		lo := int(math.Floor(src))
		hi := min(lo+1, len(in)-1)
		t := float32(src - float64(lo))
		out[i] = in[lo]*(1-t) + in[hi]*t
	}
	return out
}

// QuantizePCM16 clamps v to [-1, 1] and scales it onto the asymmetric int16
// range.
func QuantizePCM16(v float32) int16 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	clamped := math.Max(-1, math.Min(1, float64(v)))
	if clamped < 0 {
		return int16(math.Round(clamped * 32768))
	}
	return int16(math.Round(clamped * 32767))
}

func EncodePCM16(samples []float32) []byte {
	frame := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(QuantizePCM16(s)))
	}
	return frame
}

func DecodePCM16(frame []byte) []int16 {
	samples := make([]int16, len(frame)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
	}
	return samples
}

func DecodeFloat32LE(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}

	samples := make([]float32, len(b)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return samples, true
}
