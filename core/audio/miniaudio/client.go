package miniaudio

import (
	"context"
	"fmt"
	"log"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-duplex/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	captureClient

	captureRate int
	encoding    audio.EncodingInfo
	frameSize   int
}

type ClientOption func(*Client)

// WithCaptureSampleRate sets the rate the device is opened at. Samples are
// resampled to the output encoding before they reach the callback.
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

func NewClient(opts ...ClientOption) (*Client, error) {
	client := Client{
		captureRate: audio.DefaultCaptureSampleRate,
		encoding:    audio.DefaultEncodingInfo(),
		frameSize:   audio.DefaultFrameSize,
	}
	for _, opt := range opts {
		opt(&client)
	}

	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {}, //log.Println("malgo:", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}
	client.audioContext = audioCtx

	if err := client.captureClient.Init(audioCtx, client.captureRate); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

// Capture streams PCM16 frames in the client's encoding to onFrame until ctx
// is done.
func (c *Client) Capture(ctx context.Context, onFrame func(frame []byte)) error {
	resampler := audio.NewResampler(c.captureRate, onFrame,
		audio.WithOutputRate(c.encoding.SampleRate),
		audio.WithFrameSize(c.frameSize),
	)

	log.Println("Starting microphone capture. Speak now...")
	if err := c.captureClient.Start(resampler.WriteFloat32LE); err != nil {
		return err
	}

	<-ctx.Done()
	return c.captureClient.Stop()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
