package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"OverlayAssistant/internal/service/conversation"

	"go.uber.org/zap/zaptest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPersistAndReadHistory(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	turns := []struct {
		session conversation.SessionID
		turn    conversation.Turn
	}{
		{100, conversation.Turn{Timestamp: 1000, Transcription: "first", AIResponse: "a1"}},
		{100, conversation.Turn{Timestamp: 1001, Transcription: "second", AIResponse: "a2", HasImage: true}},
		{200, conversation.Turn{Timestamp: 2000, Transcription: "other", AIResponse: "b1"}},
	}
	for _, tt := range turns {
		if err := s.PersistTurn(ctx, tt.session, tt.turn); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	hist, err := s.History(ctx, 100)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0].Transcription != "first" || !hist[1].HasImage {
		t.Fatalf("unexpected history %+v", hist)
	}

	sessions, err := s.Sessions(ctx, 10)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("sessions = %+v", sessions)
	}
	if sessions[0].SessionID != 200 || sessions[1].Turns != 2 || sessions[1].Preview != "first" {
		t.Fatalf("unexpected order or summary %+v", sessions)
	}
}

func TestHistoryOfUnknownSession(t *testing.T) {
	hist, err := openTemp(t).History(context.Background(), 42)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 0 {
		t.Fatalf("expected empty history, got %+v", hist)
	}
}
