package main

import (
	"context"
	"os/signal"
	"syscall"

	"OverlayAssistant/internal/app/screenshotter"
	"OverlayAssistant/internal/provider"
	"OverlayAssistant/internal/service/events"
	"OverlayAssistant/internal/service/events/httpapi"
	"OverlayAssistant/internal/service/events/ws"
	"OverlayAssistant/internal/service/notify"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (c *cli) newServeCmd() *cobra.Command {
	var sound bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local server: UI bridge, notification stream and local proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx, sound)
		},
	}
	cmd.Flags().BoolVar(&sound, "sound", true, "play a sound when an answer is complete")
	return cmd
}

func (c *cli) serve(ctx context.Context, sound bool) error {
	hub := ws.NewHub(c.logger)
	defer hub.Close()

	notifiers := events.Multi{hub}
	if sound {
		notifiers = append(notifiers, notify.NewSoundNotifier(c.logger, c.cfg.NotificationSoundPath, nil))
	}

	rt, err := c.build(ctx, notifiers)
	if err != nil {
		return err
	}
	defer rt.Close()

	shots := screenshotter.New(c.cfg.Capture, c.logger)
	completer := provider.NewOllamaCompleter(rt.client, provider.Config{
		Endpoint:    c.cfg.Ollama.URL,
		Model:       c.cfg.Ollama.Model,
		Temperature: c.cfg.Ollama.Temperature,
		NumPredict:  c.cfg.Ollama.NumPredict,
	}, c.logger)

	opts := httpapi.Options{
		Coordinator: rt.coord,
		Completer:   completer,
		Extractor:   rt.pipeline,
		Capturer:    shots,
		Hub:         hub,
		Health: provider.ProxyHealth{
			Model:       c.cfg.Ollama.Model,
			VisionModel: c.cfg.Ollama.VisionModel,
			HasOCR:      true,
		},
		ProgrammingLanguage: c.cfg.ProgrammingLanguage,
		ResponseLanguage:    c.cfg.ResponseLanguage,
		CaptureQuestion:     c.cfg.Capture.DefaultAsk,
	}
	if rt.history != nil {
		opts.History = rt.history
	}
	srv := httpapi.New(c.cfg.Server, opts, c.logger)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	c.logger.Infow("Assistant server started", "addr", srv.Addr(), "provider", c.cfg.Provider)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		shots.RunCleanup(gctx)
		return nil
	})
	if rt.prefs != nil {
		g.Go(func() error { return rt.prefs.Watch(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return srv.Stop(context.WithoutCancel(gctx))
	})
	return g.Wait()
}
