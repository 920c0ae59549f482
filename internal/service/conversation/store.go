package conversation

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrEmptyInput реплика без текста и без картинки.
var ErrEmptyInput = errors.New("transcription is empty")

// Роли сообщений в формате chat completions.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// lastID последний выданный в процессе идентификатор сессии.
var lastID atomic.Int64

// nextID возвращает идентификатор на основе времени, строго больший всех ранее выданных.
func nextID(now time.Time) int64 {
	candidate := now.UnixMilli()
	for {
		prev := lastID.Load()
		id := max(candidate, prev+1)
		if lastID.CompareAndSwap(prev, id) {
			return id
		}
	}
}

// SessionID идентификатор сессии. Сравнение по Int() отражает порядок создания.
type SessionID int64

func (id SessionID) String() string { return strconv.FormatInt(int64(id), 10) }

// Int возвращает числовое значение идентификатора.
func (id SessionID) Int() int64 { return int64(id) }

// Turn одна завершённая реплика: вопрос пользователя и полный ответ модели.
type Turn struct {
	Timestamp     int64  `json:"timestamp"`
	Transcription string `json:"transcription"`
	AIResponse    string `json:"ai_response"`
	HasImage      bool   `json:"has_image"`
}

// Message элемент истории в формате {role, content}.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Snapshot копия состояния диалога только для чтения.
type Snapshot struct {
	SessionID SessionID `json:"session_id"`
	Turns     []Turn    `json:"turns"`
}

// Summary краткие сведения о сохранённой сессии.
type Summary struct {
	SessionID SessionID `json:"session_id"`
	Turns     int       `json:"turns"`
	FirstTS   int64     `json:"first_timestamp"`
	LastTS    int64     `json:"last_timestamp"`
	Preview   string    `json:"preview"`
}

// Store журнал реплик одной сессии. Дописывается только в конец.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	id      SessionID
	started bool
	turns   []Turn
	lastTS  int64
}

// New создаёт пустой журнал. Сессия заводится лениво при первом обращении или явно через Reset.
func New() *Store {
	return &Store{now: time.Now}
}

// Reset начинает новую сессию с новым идентификатором и пустой историей.
func (s *Store) Reset() SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *Store) resetLocked() SessionID {
	s.id = SessionID(nextID(s.now()))
	s.started = true
	s.turns = nil
	return s.id
}

func (s *Store) ensureLocked() {
	if !s.started {
		s.resetLocked()
	}
}

// Append добавляет завершённую реплику. Оба поля обрезаются по краям.
// Пустой вопрос допустим только для реплик с картинкой.
func (s *Store) Append(transcription, aiResponse string, hasImage bool) (Turn, error) {
	transcription = strings.TrimSpace(transcription)
	aiResponse = strings.TrimSpace(aiResponse)
	if transcription == "" && !hasImage {
		return Turn{}, &EmptyInputError{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()

	ts := max(s.now().UnixMilli(), s.lastTS+1)
	s.lastTS = ts
	t := Turn{Timestamp: ts, Transcription: transcription, AIResponse: aiResponse, HasImage: hasImage}
	s.turns = append(s.turns, t)
	return t, nil
}

// MessageList превращает историю в чередующиеся user/assistant сообщения, 2 на реплику.
func (s *Store) MessageList() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()

	out := make([]Message, 0, 2*len(s.turns))
	for _, t := range s.turns {
		out = append(out,
			Message{Role: RoleUser, Content: t.Transcription},
			Message{Role: RoleAssistant, Content: t.AIResponse},
		)
	}
	return out
}

// Snapshot возвращает копию текущей сессии.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()

	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return Snapshot{SessionID: s.id, Turns: turns}
}

// SessionID возвращает текущий идентификатор, заводя сессию при необходимости.
func (s *Store) SessionID() SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked()
	return s.id
}

// Len количество реплик в текущей сессии.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// EmptyInputError ошибка валидации пустой реплики.
type EmptyInputError struct{}

func (e *EmptyInputError) Error() string { return ErrEmptyInput.Error() }

func (e *EmptyInputError) Is(target error) bool { return target == ErrEmptyInput }
