package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	imgsvc "OverlayAssistant/internal/service/image"
)

// OllamaVision описывает картинку vision-моделью локального Ollama (/api/generate без стрима).
type OllamaVision struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

func NewOllamaVision(httpClient *http.Client, baseURL, model string) *OllamaVision {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaVision{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/"), model: model}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Images  []string       `json:"images"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (c *OllamaVision) Describe(ctx context.Context, instruction string, image []byte) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  instruction,
		Images:  []string{imgsvc.RawBase64(image)},
		Stream:  false,
		Options: map[string]any{"temperature": 0.1, "num_predict": 1500},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("vision read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("vision error: %d", resp.StatusCode)
	}
	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("vision decode: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("vision error: %s", out.Error)
	}
	return strings.TrimSpace(out.Response), nil
}
