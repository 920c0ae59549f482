package ai

import (
	"context"
	"errors"
	"strings"

	imgsvc "OverlayAssistant/internal/service/image"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// OpenAIVision отправляет инструкцию и картинку в OpenAI Responses API.
type OpenAIVision struct {
	client *openai.Client
	model  openai.ChatModel
}

// NewOpenAIVision создаёт клиент. Пустой apiKey: ключ берётся из OPENAI_API_KEY.
func NewOpenAIVision(apiKey, model string, opts ...option.RequestOption) *OpenAIVision {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = string(openai.ChatModelGPT4o)
	}
	client := openai.NewClient(opts...)
	return &OpenAIVision{client: &client, model: openai.ChatModel(model)}
}

func (c *OpenAIVision) Describe(ctx context.Context, instruction string, image []byte) (string, error) {
	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(
					responses.ResponseInputMessageContentListParam{
						{
							OfInputText: &responses.ResponseInputTextParam{
								Text: instruction,
							},
						},
						{
							OfInputImage: &responses.ResponseInputImageParam{
								Detail:   responses.ResponseInputImageDetailHigh,
								ImageURL: openai.String(imgsvc.DataURL(image)),
							},
						},
					},
					responses.EasyInputMessageRoleUser,
				),
			},
		},
	})
	if err != nil {
		return "", err
	}

	out := strings.TrimSpace(resp.OutputText())
	if out == "" {
		return "", errors.New("vision model returned empty output")
	}
	return out, nil
}
