package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Transcribe opens the live connection and starts delivering callbacks from
// a single read goroutine, in the order Deepgram sends its messages. A failed
// dial is returned to the caller and never retried.
func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	ctx, span := tracer.Start(ctx, "deepgram.transcribe")
	defer span.End()

	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.DefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("invalid encoding: %w", err)
	}

	if s.IsConnected() {
		return fmt.Errorf("transcription already running")
	}

	listenURL, err := s.listenURL(*encoding)
	if err != nil {
		return fmt.Errorf("failed to build listen url: %w", err)
	}
	span.SetAttributes(
		attribute.String("deepgram.model", s.model),
		attribute.Int("deepgram.sample_rate", encoding.SampleRate),
	)

	conn, _, err := s.dialer.DialContext(ctx, listenURL,
		http.Header{"Authorization": {"Token " + s.apiKey}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		conn.Close()
		return fmt.Errorf("transcription already running")
	}

	// The read loop outlives the dial context, it stops on Close.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.conn = conn
	s.cancel = cancel
	s.done = make(chan struct{})
	s.lastMsgTs = time.Now()

	go s.keepAlive(loopCtx, conn)
	go s.readAndProcessMessages(loopCtx, conn, newCallbacks(*options), s.done)

	return nil
}

func (s *TranscriptionClient) listenURL(encoding encodingInfo) (string, error) {
	listenURL, err := url.Parse(s.baseURL)
	if err != nil {
		return "", err
	}

	queryParams := listenURL.Query()
	queryParams.Set("model", s.model)
	queryParams.Set("language", s.language)
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", strconv.Itoa(encoding.Channels))
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("vad_events", "true")
	queryParams.Set("endpointing", strconv.Itoa(s.endpointingMs))
	queryParams.Set("utterance_end_ms", strconv.Itoa(s.utteranceEndMs))
	listenURL.RawQuery = queryParams.Encode()

	return listenURL.String(), nil
}

// SendAudio forwards one PCM frame. Frames sent while the connection is not
// open are dropped and ErrNotConnected is returned.
func (s *TranscriptionClient) SendAudio(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		if s.droppedFrames != nil {
			s.droppedFrames.Add(context.Background(), 1)
		}
		return speechtotext.ErrNotConnected
	}

	s.lastMsgTs = time.Now()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// Close asks Deepgram to close the stream, closes the socket and waits for
// the read loop to exit. No callback fires after Close returns.
func (s *TranscriptionClient) Close(ctx context.Context) error {
	s.connMu.Lock()
	conn, cancel, done := s.conn, s.cancel, s.done
	s.conn, s.cancel, s.done = nil, nil, nil
	if conn == nil {
		s.connMu.Unlock()
		return nil
	}

	var errs []error
	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "CloseStream"}); err != nil {
		errs = append(errs, fmt.Errorf("failed to send close stream to deepgram: %w", err))
	}
	s.connMu.Unlock()

	cancel()
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, fmt.Errorf("failed to close deepgram websocket: %w", err))
	}

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for deepgram read loop: %w", ctx.Err()))
	}

	return errors.Join(errs...)
}

func (s *TranscriptionClient) keepAlive(ctx context.Context, conn *websocket.Conn) {
	if s.keepAliveInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn == conn && time.Since(s.lastMsgTs) >= s.keepAliveInterval {
				if err := conn.WriteJSON(struct {
					Type string `json:"type"`
				}{Type: "KeepAlive"}); err != nil {
					logger.Warn("failed to send keep alive to deepgram", "error", err)
				}
			}
			s.connMu.Unlock()
		}
	}
}

func (s *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, cb callbacks, done chan struct{}) {
	defer close(done)

	var accumulator utteranceAccumulator
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Error("failed to read deepgram websocket message", "error", err)
			}

			s.connMu.Lock()
			if s.conn == conn {
				s.cancel()
				s.conn, s.cancel, s.done = nil, nil, nil
			}
			s.connMu.Unlock()
			conn.Close()
			return
		}
		if ctx.Err() != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		s.processMessage(ctx, msg, &accumulator, cb)
	}
}

func (s *TranscriptionClient) processMessage(_ context.Context, msg []byte, accumulator *utteranceAccumulator, cb callbacks) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram results", "error", err)
			return
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}

		accumulator.onResult(msgResp.Channel.Alternatives[0].Transcript,
			msgResp.IsFinal, msgResp.SpeechFinal, cb)

	case api.TypeUtteranceEndResponse:
		accumulator.confirm(cb)

	case api.TypeSpeechStartedResponse:
		logger.Debug("speech started")
		cb.speechStarted()
	}
}
