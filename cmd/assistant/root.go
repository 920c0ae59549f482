package main

import (
	"OverlayAssistant/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cli общее состояние команд: конфигурация и логгер.
type cli struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	sync   func()
}

func newRootCmd() (*cobra.Command, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}
	c := &cli{cfg: cfg}

	root := &cobra.Command{
		Use:   "assistant",
		Short: "Overlay interview and coding assistant",
		Long: `Streams answers from a cloud model, a local proxy or a local Ollama server.

Text questions go straight to the model. Screenshots are either sent to a
vision-capable model or analyzed locally (OCR + vision model) and turned
into a problem-solving prompt.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.cfg.Validate(); err != nil {
				return err
			}
			return c.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.sync != nil {
				c.sync()
			}
		},
	}
	config.BindFlags(root.PersistentFlags(), cfg)

	root.AddCommand(
		c.newServeCmd(),
		c.newAskCmd(),
		c.newSolveCmd(),
		c.newCaptureCmd(),
		c.newHistoryCmd(),
		c.newProfilesCmd(),
	)
	return root, nil
}

func (c *cli) initLogger() error {
	var (
		logger *zap.Logger
		err    error
	)
	if c.cfg.DebugMode {
		logger, err = zap.NewDevelopment()
	} else {
		zcfg := zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		logger, err = zcfg.Build()
	}
	if err != nil {
		return err
	}
	c.logger = logger.Sugar()
	c.sync = func() {
		// Sync на stderr в терминале часто возвращает EINVAL, это не ошибка
		_ = logger.Sync()
	}
	return nil
}
