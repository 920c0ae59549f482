package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"OverlayAssistant/internal/app/screenshotter"
	"OverlayAssistant/internal/service/coordinator"

	"github.com/spf13/cobra"
)

// oneShot инициализирует сессию, выполняет один запрос и печатает ответ по мере стрима.
func (c *cli) oneShot(ctx context.Context, send func(*coordinator.Coordinator) coordinator.Result) error {
	term := newTerminal(os.Stdout, os.Stderr)
	rt, err := c.build(ctx, term)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !rt.coord.Initialize(ctx, coordinator.InitRequest{}) {
		return errors.New("session initialization failed")
	}
	defer rt.coord.Close()

	if res := send(rt.coord); !res.Success {
		return errors.New(res.Error)
	}
	return nil
}

func (c *cli) newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a text question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return c.oneShot(cmd.Context(), func(co *coordinator.Coordinator) coordinator.Result {
				return co.SendText(cmd.Context(), text)
			})
		},
	}
}

func (c *cli) newSolveCmd() *cobra.Command {
	var question string
	cmd := &cobra.Command{
		Use:   "solve <image>",
		Short: "Solve the problem shown in an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			return c.oneShot(cmd.Context(), func(co *coordinator.Coordinator) coordinator.Result {
				return co.SendImage(cmd.Context(), data, question)
			})
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "additional question about the image")
	return cmd
}

func (c *cli) newCaptureCmd() *cobra.Command {
	var question string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture the screen and send it as an image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shot, err := screenshotter.New(c.cfg.Capture, c.logger).Capture(cmd.Context())
			if err != nil {
				return err
			}
			if question == "" {
				question = c.cfg.Capture.DefaultAsk
			}
			return c.oneShot(cmd.Context(), func(co *coordinator.Coordinator) coordinator.Result {
				return co.SendImage(cmd.Context(), shot.Data, question)
			})
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "additional question about the screen")
	return cmd
}
