package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"OverlayAssistant/internal/adapter/storage/sqlite"
	"OverlayAssistant/internal/service/conversation"
	"OverlayAssistant/internal/service/prompt"

	"github.com/spf13/cobra"
)

func (c *cli) newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List saved sessions or print one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Storage.DBPath == "" {
				return fmt.Errorf("history storage is disabled (empty --db-path)")
			}
			store, err := sqlite.Open(cmd.Context(), c.cfg.Storage.DBPath, c.logger)
			if err != nil {
				return err
			}
			defer store.Close()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				sessions, err := store.Sessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(out, mutedStyle.Render("No saved sessions"))
					return nil
				}
				for _, s := range sessions {
					fmt.Fprintf(out, "%s  %s  %d turns  %s\n",
						headerStyle.Render(s.SessionID.String()),
						mutedStyle.Render(formatTS(s.LastTS)),
						s.Turns,
						truncate(s.Preview, 60))
				}
				return nil
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			turns, err := store.History(cmd.Context(), conversation.SessionID(id))
			if err != nil {
				return err
			}
			for _, t := range turns {
				label := "Q"
				if t.HasImage {
					label = "Q [image]"
				}
				fmt.Fprintf(out, "%s %s\n%s\n%s\n\n", headerStyle.Render(label), mutedStyle.Render(formatTS(t.Timestamp)), t.Transcription, t.AIResponse)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to list")
	return cmd
}

func (c *cli) newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List available prompt profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := prompt.Default()
			if err != nil {
				return err
			}
			for _, p := range a.Profiles() {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func formatTS(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
