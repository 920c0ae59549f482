package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Framing формат кадров потокового ответа.
type Framing int

const (
	// SSE строки вида "data: {json}", завершение маркером [DONE].
	SSE Framing = iota
	// NDJSON по одному JSON-объекту на строку, завершение полем done=true.
	NDJSON
)

func (f Framing) String() string {
	switch f {
	case SSE:
		return "sse"
	case NDJSON:
		return "ndjson"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

const (
	ssePrefix = "data:"
	sseDone   = "[DONE]"
)

// Decoder собирает потоковый ответ из произвольно нарезанных кусков байт.
// Хранит незавершённую строку и накопленный текст; живёт в рамках одного запроса.
type Decoder struct {
	framing Framing
	logger  *zap.SugaredLogger

	pending []byte
	text    strings.Builder
	done    bool
	skipped int
	errMsg  string
}

// NewDecoder создаёт декодер для заданного формата кадров.
func NewDecoder(framing Framing, logger *zap.SugaredLogger) *Decoder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Decoder{framing: framing, logger: logger}
}

// Write принимает очередной кусок байт и возвращает накопленный текст после каждой новой дельты, по порядку.
// Последняя неполная строка остаётся в буфере до следующего вызова.
func (d *Decoder) Write(chunk []byte) []string {
	d.pending = append(d.pending, chunk...)
	var updates []string
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := d.pending[:i]
		d.pending = d.pending[i+1:]
		if u, ok := d.line(line); ok {
			updates = append(updates, u)
		}
	}
	if len(d.pending) == 0 {
		d.pending = nil
	}
	return updates
}

// Flush разбирает остаток буфера после окончания потока (строка без завершающего \n).
func (d *Decoder) Flush() []string {
	rest := d.pending
	d.pending = nil
	if u, ok := d.line(rest); ok {
		return []string{u}
	}
	return nil
}

// Text накопленный ответ.
func (d *Decoder) Text() string { return d.text.String() }

// Done поток явно завершён ([DONE] или done=true).
func (d *Decoder) Done() bool { return d.done }

// Skipped количество отброшенных повреждённых строк.
func (d *Decoder) Skipped() int { return d.skipped }

// Err текст ошибки, присланной сервером внутри потока, если была.
func (d *Decoder) Err() string { return d.errMsg }

func (d *Decoder) line(raw []byte) (string, bool) {
	if d.done {
		return "", false
	}
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return "", false
	}

	var payload string
	switch d.framing {
	case SSE:
		if !strings.HasPrefix(line, ssePrefix) {
			// комментарии и служебные поля SSE (event:, id:, retry:)
			return "", false
		}
		payload = strings.TrimSpace(strings.TrimPrefix(line, ssePrefix))
		if payload == sseDone {
			d.done = true
			return "", false
		}
	default:
		payload = line
	}

	if !gjson.Valid(payload) {
		d.skipped++
		d.logger.Warnw("Skipping malformed stream line", "framing", d.framing.String(), "line", truncate(payload, 200))
		return "", false
	}

	obj := gjson.Parse(payload)
	if msg := obj.Get("error.message"); msg.Exists() {
		d.errMsg = msg.String()
	} else if e := obj.Get("error"); e.Type == gjson.String {
		d.errMsg = e.String()
	}

	delta := d.delta(obj)
	if d.framing == NDJSON && obj.Get("done").Bool() {
		d.done = true
	}
	if delta == "" {
		return "", false
	}
	d.text.WriteString(delta)
	return d.text.String(), true
}

func (d *Decoder) delta(obj gjson.Result) string {
	switch d.framing {
	case SSE:
		if c := obj.Get("choices.0.delta.content"); c.Exists() {
			return c.String()
		}
		return obj.Get("choices.0.message.content").String()
	default:
		// /api/chat кладёт текст в message.content, /api/generate — в response
		for _, path := range []string{"message.content", "content", "response"} {
			if c := obj.Get(path); c.Exists() && c.Type == gjson.String {
				return c.String()
			}
		}
		return ""
	}
}

// Decode читает поток до конца и вызывает onUpdate с накопленным текстом после каждой дельты.
// Возвращает полный ответ. Повреждённые строки пропускаются.
func Decode(ctx context.Context, r io.Reader, framing Framing, logger *zap.SugaredLogger, onUpdate func(cumulative string)) (string, error) {
	d := NewDecoder(framing, logger)
	emit := func(updates []string) {
		if onUpdate == nil {
			return
		}
		for _, u := range updates {
			onUpdate(u)
		}
	}

	buf := make([]byte, 4096)
	for !d.Done() {
		if err := ctx.Err(); err != nil {
			return d.Text(), err
		}
		n, err := r.Read(buf)
		if n > 0 {
			emit(d.Write(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return d.Text(), fmt.Errorf("read stream: %w", err)
		}
	}
	emit(d.Flush())

	// ошибка в потоке обрывает ответ, даже если часть текста уже пришла
	if d.Err() != "" {
		return d.Text(), &ServerError{Message: d.Err()}
	}
	return d.Text(), nil
}

// ServerError ошибка, пришедшая внутри потока вместо ответа.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "stream error: " + e.Message }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
