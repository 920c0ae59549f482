package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"OverlayAssistant/internal/service/stream"

	"go.uber.org/zap"
)

// maxErrorBody сколько байт тела ошибки читаем для сообщения.
const maxErrorBody = 64 << 10

type streamCall struct {
	client   *http.Client
	method   string
	url      string
	headers  map[string]string
	body     any
	framing  stream.Framing
	logger   *zap.SugaredLogger
	onUpdate func(string)

	// statusErr превращает неуспешный ответ в ошибку провайдера.
	statusErr func(status int, body []byte) error
	// connErr превращает ошибку соединения в ошибку провайдера.
	connErr func(err error) error
}

// do отправляет JSON-запрос и разбирает потоковый ответ. Если сервер ответил обычным JSON
// (application/json), ответ берётся из поля response.
func (c streamCall) do(ctx context.Context) (string, error) {
	payload, err := json.Marshal(c.body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", c.connErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", c.statusErr(resp.StatusCode, body)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return c.plain(resp.Body)
	}

	full, err := stream.Decode(ctx, resp.Body, c.framing, c.logger, c.onUpdate)
	if err != nil {
		var se *stream.ServerError
		if errors.As(err, &se) {
			return "", &TransportError{Status: resp.StatusCode, Message: se.Message, Err: err}
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &TransportError{Status: resp.StatusCode, Message: "Stream interrupted: " + err.Error(), Err: err}
	}
	return full, nil
}

// plainResponse ответ прокси без стрима.
type plainResponse struct {
	Success  *bool  `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (c streamCall) plain(r io.Reader) (string, error) {
	var out plainResponse
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return "", &TransportError{Message: "Invalid response: " + err.Error(), Err: err}
	}
	if (out.Success != nil && !*out.Success) || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = "Request failed"
		}
		return "", &TransportError{Message: msg}
	}
	if c.onUpdate != nil && out.Response != "" {
		c.onUpdate(out.Response)
	}
	return out.Response, nil
}

// getJSON выполняет GET и декодирует JSON-ответ в out.
func getJSON(ctx context.Context, client *http.Client, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, fmt.Errorf("HTTP error %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", url, err)
	}
	return resp.StatusCode, nil
}
