package conversation

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestResetIsMonotonic(t *testing.T) {
	s := New()
	// замороженные часы: идентификаторы всё равно растут
	frozen := time.UnixMilli(1_000)
	s.now = func() time.Time { return frozen }

	prev := s.Reset()
	for range 50 {
		id := s.Reset()
		if id.Int() <= prev.Int() {
			t.Fatalf("id %d not greater than %d", id, prev)
		}
		prev = id
	}

	other := New()
	if id := other.Reset(); id.Int() <= prev.Int() {
		t.Fatalf("ids must grow across stores: %d <= %d", id, prev)
	}
}

func TestResetClearsTurns(t *testing.T) {
	s := New()
	if _, err := s.Append("q", "a", false); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	if n := len(s.MessageList()); n != 0 {
		t.Fatalf("MessageList after reset has %d entries", n)
	}
}

func TestAppendRejectsEmptyTranscription(t *testing.T) {
	s := New()
	for _, in := range []string{"", "   ", "\n\t"} {
		_, err := s.Append(in, "answer", false)
		if !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("Append(%q) error = %v", in, err)
		}
		var ve *EmptyInputError
		if !errors.As(err, &ve) {
			t.Fatalf("Append(%q) error is not *EmptyInputError", in)
		}
	}
	if s.Len() != 0 {
		t.Fatal("rejected turns must not be stored")
	}
}

func TestAppendAllowsEmptyTranscriptionWithImage(t *testing.T) {
	s := New()
	turn, err := s.Append("", "solution", true)
	if err != nil {
		t.Fatal(err)
	}
	if !turn.HasImage {
		t.Fatal("HasImage lost")
	}
}

func TestAppendTrims(t *testing.T) {
	s := New()
	turn, err := s.Append("  hello \n", "\tworld  ", false)
	if err != nil {
		t.Fatal(err)
	}
	if turn.Transcription != "hello" || turn.AIResponse != "world" {
		t.Fatalf("turn not trimmed: %+v", turn)
	}
}

func TestMessageListAlternates(t *testing.T) {
	s := New()
	inputs := [][2]string{{"q1", "a1"}, {"q2", "a2"}, {"q3", "a3"}}
	for _, in := range inputs {
		if _, err := s.Append(in[0], in[1], false); err != nil {
			t.Fatal(err)
		}
	}

	msgs := s.MessageList()
	if len(msgs) != 2*len(inputs) {
		t.Fatalf("len = %d, want %d", len(msgs), 2*len(inputs))
	}
	for i, in := range inputs {
		u, a := msgs[2*i], msgs[2*i+1]
		if u.Role != RoleUser || u.Content != in[0] {
			t.Errorf("msg %d = %+v", 2*i, u)
		}
		if a.Role != RoleAssistant || a.Content != in[1] {
			t.Errorf("msg %d = %+v", 2*i+1, a)
		}
	}
}

func TestTimestampsIncrease(t *testing.T) {
	s := New()
	frozen := time.UnixMilli(42)
	s.now = func() time.Time { return frozen }
	for range 5 {
		if _, err := s.Append("q", "a", false); err != nil {
			t.Fatal(err)
		}
	}
	turns := s.Snapshot().Turns
	for i := 1; i < len(turns); i++ {
		if turns[i].Timestamp <= turns[i-1].Timestamp {
			t.Fatalf("timestamps not increasing: %v", turns)
		}
	}
}

func TestLazyInitialization(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	if snap.SessionID == 0 {
		t.Fatal("snapshot must create a session lazily")
	}
	if len(snap.Turns) != 0 {
		t.Fatal("fresh session must be empty")
	}
	if s.SessionID() != snap.SessionID {
		t.Fatal("lazy session id must be stable")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := New()
	if _, err := s.Append("q", "a", false); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	snap.Turns[0].AIResponse = "mutated"
	if s.Snapshot().Turns[0].AIResponse != "a" {
		t.Fatal("snapshot must not alias store state")
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Append("q", "a", false)
		}()
	}
	wg.Wait()
	if got := len(s.MessageList()); got != 40 {
		t.Fatalf("len = %d, want 40", got)
	}
}
