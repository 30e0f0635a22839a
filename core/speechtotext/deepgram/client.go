package deepgram

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultBaseURL           = "wss://api.deepgram.com/v1/listen"
	defaultModel             = "nova-2"
	defaultLanguage          = "en"
	defaultEndpointingMs     = 300
	defaultUtteranceEndMs    = 1000
	defaultKeepAliveInterval = 5 * time.Second
)

// TranscriptionClient streams PCM audio to Deepgram's live listen endpoint
// and normalizes its responses into interim, eager and confirmed transcripts.
type TranscriptionClient struct {
	apiKey            string
	baseURL           string
	model             string
	language          string
	endpointingMs     int
	utteranceEndMs    int
	keepAliveInterval time.Duration
	dialer            *websocket.Dialer

	connMu    sync.Mutex
	conn      *websocket.Conn
	lastMsgTs time.Time
	cancel    func()
	done      chan struct{}

	droppedFrames metric.Int64Counter
}

type ClientOption func(*TranscriptionClient)

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		c.model = model
	}
}

func WithLanguage(language string) ClientOption {
	return func(c *TranscriptionClient) {
		c.language = language
	}
}

// WithEndpointing sets the silence, in milliseconds, after which Deepgram
// marks a result as speech final.
func WithEndpointing(ms int) ClientOption {
	return func(c *TranscriptionClient) {
		c.endpointingMs = ms
	}
}

// WithUtteranceEnd sets the gap, in milliseconds, after which Deepgram sends
// an UtteranceEnd message.
func WithUtteranceEnd(ms int) ClientOption {
	return func(c *TranscriptionClient) {
		c.utteranceEndMs = ms
	}
}

func WithKeepAliveInterval(interval time.Duration) ClientOption {
	return func(c *TranscriptionClient) {
		c.keepAliveInterval = interval
	}
}

// WithBaseURL overrides the listen endpoint, mostly useful for tests.
func WithBaseURL(url string) ClientOption {
	return func(c *TranscriptionClient) {
		c.baseURL = url
	}
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) *TranscriptionClient {
	client := &TranscriptionClient{
		apiKey:            apiKey,
		baseURL:           defaultBaseURL,
		model:             defaultModel,
		language:          defaultLanguage,
		endpointingMs:     defaultEndpointingMs,
		utteranceEndMs:    defaultUtteranceEndMs,
		keepAliveInterval: defaultKeepAliveInterval,
		dialer:            websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}

	droppedFrames, err := meter.Int64Counter("recognizer.dropped_frames",
		metric.WithDescription("Audio frames dropped because the recognizer was not connected"))
	if err != nil {
		logger.Warn("failed to create dropped frames counter", "error", err)
	}
	client.droppedFrames = droppedFrames

	return client
}

// IsConnected reports whether audio sent now would reach Deepgram.
func (s *TranscriptionClient) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}
