package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	orchestration "github.com/koscakluka/ema-duplex/core"
	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/audio/miniaudio"
	"github.com/koscakluka/ema-duplex/core/audio/portaudio"
	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/forms"
	"github.com/koscakluka/ema-duplex/internal/config"
)

const (
	backendMiniaudio = "miniaudio"
	backendPortaudio = "portaudio"
)

var listenBackend string

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Talk to the agent through the local microphone",
	Long: `Capture the default microphone, run one conversation session and
print every event as a JSON line on stdout. Nothing is played back.`,
	RunE: runListen,
}

type microphone interface {
	Capture(ctx context.Context, onFrame func(frame []byte)) error
	Close()
}

func openMicrophone(cfg config.Config) (microphone, error) {
	info := encodingInfo(cfg)
	switch listenBackend {
	case backendMiniaudio:
		return miniaudio.NewClient(
			miniaudio.WithCaptureSampleRate(cfg.CaptureSampleRate),
			miniaudio.WithEncodingInfo(info),
			miniaudio.WithFrameSize(cfg.FrameSize),
		)
	case backendPortaudio:
		return portaudio.NewClient(audio.DefaultFrameSize,
			portaudio.WithCaptureSampleRate(cfg.CaptureSampleRate),
			portaudio.WithEncodingInfo(info),
			portaudio.WithFrameSize(cfg.FrameSize),
		)
	}
	return nil, fmt.Errorf("unknown audio backend %q (use %s or %s)", listenBackend, backendMiniaudio, backendPortaudio)
}

func printEvent(event events.Event) {
	payload, err := events.Marshal(event)
	if err != nil {
		log.Printf("failed to encode %s event: %v", event.Kind(), err)
		return
	}
	fmt.Fprintln(os.Stdout, string(payload))
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	models, err := newModels(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating language models: %w", err)
	}

	mic, err := openMicrophone(cfg)
	if err != nil {
		return fmt.Errorf("opening microphone: %w", err)
	}
	defer mic.Close()

	session := orchestration.NewSession(sessionOptions(cfg, models, uuid.NewString(), forms.Form{}, printEvent)...)
	if err := session.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer session.Close()

	if err := session.StartVoice(ctx); err != nil {
		return err
	}

	return mic.Capture(ctx, func(frame []byte) {
		if err := session.SendAudio(frame); err != nil {
			log.Printf("failed to send audio: %v", err)
		}
	})
}

func init() {
	listenCmd.Flags().StringVar(&listenBackend, "backend", backendMiniaudio, "Audio capture backend: miniaudio or portaudio")
}
