package main

import (
	"context"
	"errors"
	"net/http"

	"OverlayAssistant/internal/adapter/preferences"
	"OverlayAssistant/internal/adapter/storage/sqlite"
	"OverlayAssistant/internal/ai"
	"OverlayAssistant/internal/config"
	"OverlayAssistant/internal/ocr/tesseract"
	"OverlayAssistant/internal/provider"
	"OverlayAssistant/internal/service/coordinator"
	"OverlayAssistant/internal/service/events"
	"OverlayAssistant/internal/service/pipeline"
	"OverlayAssistant/internal/service/prompt"
)

// runtime собранные зависимости приложения.
type runtime struct {
	coord    *coordinator.Coordinator
	pipeline *pipeline.Pipeline
	history  *sqlite.Store
	prefs    *preferences.Store
	client   *http.Client
}

func (r *runtime) Close() error {
	if r.history != nil {
		return r.history.Close()
	}
	return nil
}

func (c *cli) newVision(client *http.Client) ai.Describer {
	switch c.cfg.Vision.Backend {
	case config.VisionBackendOpenAI:
		return ai.NewOpenAIVision(c.cfg.Vision.APIKey, c.cfg.Vision.Model)
	default:
		return ai.NewOllamaVision(client, c.cfg.Ollama.URL, c.cfg.Ollama.VisionModel)
	}
}

// build собирает координатор и его зависимости. Ошибки шаблонов профилей всплывают здесь, при старте.
func (c *cli) build(ctx context.Context, notifier events.Notifier) (*runtime, error) {
	prompts, err := prompt.Default()
	if err != nil {
		return nil, err
	}
	rt := &runtime{client: &http.Client{}}

	ocr := tesseract.New(c.cfg.Pipeline.OCRLanguage, c.logger)
	rt.pipeline = pipeline.New(ocr, c.newVision(rt.client), c.cfg.Pipeline.MinOCRTextLength, c.logger)

	deps := provider.Deps{
		HTTPClient:    rt.client,
		Prompts:       prompts,
		Pipeline:      rt.pipeline,
		Notifier:      events.Multi{events.LogNotifier(c.logger), notifier},
		Logger:        c.logger,
		MinImageBytes: c.cfg.Pipeline.MinImageBytes,
	}

	if c.cfg.Storage.DBPath != "" {
		rt.history, err = sqlite.Open(ctx, c.cfg.Storage.DBPath, c.logger)
		if err != nil {
			return nil, err
		}
		deps.Sink = rt.history
	}

	var prefs coordinator.PreferencesSource
	if c.cfg.PrefsPath != "" {
		rt.prefs, err = preferences.Load(c.cfg.PrefsPath, c.logger)
		if err != nil {
			return nil, errors.Join(err, rt.Close())
		}
		prefs = rt.prefs
	}

	rt.coord = coordinator.New(c.cfg, deps, prefs)
	return rt, nil
}
