package portaudio

import (
	"context"
	"fmt"
	"log"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-duplex/core/audio"
)

type Client struct {
	bufferSize  int
	captureRate int
	encoding    audio.EncodingInfo
	frameSize   int

	stream *portaudio.Stream
	in     []float32
}

type ClientOption func(*Client)

func WithCaptureSampleRate(rate int) ClientOption {
	return func(c *Client) {
		c.captureRate = rate
	}
}

func WithEncodingInfo(info audio.EncodingInfo) ClientOption {
	return func(c *Client) {
		c.encoding = info
	}
}

func WithFrameSize(samples int) ClientOption {
	return func(c *Client) {
		c.frameSize = samples
	}
}

// NewClient opens the default input device. bufferSize is the number of
// samples read from the device per blocking read.
func NewClient(bufferSize int, opts ...ClientOption) (*Client, error) {
	c := &Client{
		bufferSize:  bufferSize,
		captureRate: audio.DefaultCaptureSampleRate,
		encoding:    audio.DefaultEncodingInfo(),
		frameSize:   audio.DefaultFrameSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	c.in = make([]float32, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(c.captureRate), bufferSize, c.in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}
	c.stream = stream

	return c, nil
}

// Capture streams PCM16 frames in the client's encoding to onFrame until ctx
// is done.
func (c *Client) Capture(ctx context.Context, onFrame func(frame []byte)) error {
	resampler := audio.NewResampler(c.captureRate, onFrame,
		audio.WithOutputRate(c.encoding.SampleRate),
		audio.WithFrameSize(c.frameSize),
	)

	log.Println("Starting microphone capture. Speak now...")
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start PortAudio stream: %w", err)
	}
	defer c.stream.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.stream.Read(); err != nil {
				// Overflows lose a block of input, the next read carries on.
				log.Printf("Failed to read from PortAudio stream: %v", err)
				continue
			}

			resampler.Write(c.in)
		}
	}
}

func (c *Client) Close() {
	c.stream.Close()
	portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
