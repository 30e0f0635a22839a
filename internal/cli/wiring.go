package cli

import (
	"context"
	"fmt"

	orchestration "github.com/koscakluka/ema-duplex/core"
	"github.com/koscakluka/ema-duplex/core/audio"
	"github.com/koscakluka/ema-duplex/core/events"
	"github.com/koscakluka/ema-duplex/core/forms"
	"github.com/koscakluka/ema-duplex/core/llms/gemini"
	"github.com/koscakluka/ema-duplex/core/llms/openai"
	"github.com/koscakluka/ema-duplex/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-duplex/internal/config"
)

type languageModel interface {
	orchestration.LLMWithPrompt
	orchestration.LLMWithStream
}

// models holds the clients shared by every session. They are stateless per
// request, unlike the recognizer.
type models struct {
	eager languageModel
	reply languageModel
}

func newModels(ctx context.Context, cfg config.Config) (*models, error) {
	key := cfg.LLMAPIKey()
	if key == "" {
		return &models{}, nil
	}

	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		return &models{
			eager: openai.NewClient(key, cfg.LLM.EagerModel),
			reply: openai.NewClient(key, cfg.LLM.ReplyModel),
		}, nil
	default:
		eager, err := gemini.NewClient(ctx, key, cfg.LLM.EagerModel)
		if err != nil {
			return nil, fmt.Errorf("creating eager model: %w", err)
		}
		reply, err := gemini.NewClient(ctx, key, cfg.LLM.ReplyModel)
		if err != nil {
			return nil, fmt.Errorf("creating reply model: %w", err)
		}
		return &models{eager: eager, reply: reply}, nil
	}
}

func encodingInfo(cfg config.Config) audio.EncodingInfo {
	info := audio.DefaultEncodingInfo()
	info.SampleRate = cfg.SampleRate
	return info
}

// sessionOptions translates the configuration into session options. Every
// session gets its own recognizer connection.
func sessionOptions(cfg config.Config, models *models, userID string, form forms.Form, handler func(events.Event)) []orchestration.SessionOption {
	opts := []orchestration.SessionOption{
		orchestration.WithSessionID(userID),
		orchestration.WithInitialForm(form),
		orchestration.WithEventHandler(handler),
		orchestration.WithEncodingInfo(encodingInfo(cfg)),
		orchestration.WithTurnConfig(orchestration.TurnConfig{
			MinimumDrain:  cfg.ParsedMinimumDrain(),
			PerCharacter:  cfg.PerCharacter(),
			CarryOverWait: cfg.ParsedCarryOverWait(),
		}),
		orchestration.WithReplyConfig(orchestration.ReplyConfig{
			EagerWait:           cfg.ParsedEagerWait(),
			ToolPassTimeout:     cfg.ParsedToolPassTimeout(),
			HistoryLimit:        cfg.Turn.HistoryLimit,
			Temperature:         cfg.LLM.Temperature,
			ToolPassTemperature: cfg.LLM.ToolPassTemperature,
			MaxToolSteps:        cfg.LLM.MaxToolSteps,
		}),
	}

	if cfg.DeepgramAPIKey != "" {
		opts = append(opts, orchestration.WithSpeechToTextClient(deepgram.NewTranscriptionClient(cfg.DeepgramAPIKey,
			deepgram.WithModel(cfg.Deepgram.Model),
			deepgram.WithLanguage(cfg.Deepgram.Language),
			deepgram.WithEndpointing(cfg.Deepgram.EndpointingMS),
			deepgram.WithUtteranceEnd(cfg.Deepgram.UtteranceEndMS),
		)))
	}
	if models.reply != nil {
		opts = append(opts, orchestration.WithStreamingLLM(models.reply))
	}
	if models.eager != nil {
		opts = append(opts, orchestration.WithEagerLLM(models.eager))
	}

	return opts
}
