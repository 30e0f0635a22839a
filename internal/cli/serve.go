package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	orchestration "github.com/koscakluka/ema-duplex/core"
	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/forms"
	"github.com/koscakluka/ema-duplex/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve conversation sessions over a websocket",
	Long: `Start the websocket endpoint /ws and the form API. Binary frames are
PCM16 audio, text frames are control messages, and events are sent back
as JSON text frames.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	models, err := newModels(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating language models: %w", err)
	}

	registry := server.NewRegistry(context.WithoutCancel(ctx), func(userID string, form forms.Form, handler func(events.Event)) *orchestration.Session {
		return orchestration.NewSession(sessionOptions(cfg, models, userID, form, handler)...)
	})

	return server.Serve(ctx, cfg.ListenAddr, registry)
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides listen_addr)")
}
