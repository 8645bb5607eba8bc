// Package llm holds the vision-LLM agents: the classifier, the
// single-artifact extractor and the chat-record association extractor. All
// three share one JSON-in/JSON-out contract over a VisionModel.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

var (
	ErrRemoteTimeout   = errors.New("vision model call timed out")
	ErrRemoteCall      = errors.New("vision model call failed")
	ErrInvalidResponse = errors.New("vision model returned an invalid response")
)

// Image is one artifact handed to the model
type Image struct {
	URL    string
	Format string // "jpeg", "png", ...
	Data   []byte
}

// VisionModel generates a JSON document from a prompt and a list of images
type VisionModel interface {
	GenerateJSON(ctx context.Context, prompt string, images []Image) ([]byte, error)
}

// GeminiModel implements VisionModel on the Gemini API
type GeminiModel struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

// NewGeminiModel creates a new Gemini-backed vision model
func NewGeminiModel(client *genai.Client, modelName string) *GeminiModel {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &GeminiModel{client: client, modelName: modelName, temperature: 0.1}
}

// GenerateJSON sends the prompt followed by each image, labelled with its URL
func (m *GeminiModel) GenerateJSON(ctx context.Context, prompt string, images []Image) ([]byte, error) {
	if m.client == nil {
		return nil, errors.New("gemini client not configured")
	}
	model := m.client.GenerativeModel(m.modelName)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(m.temperature)

	parts := make([]genai.Part, 0, 1+2*len(images))
	parts = append(parts, genai.Text(prompt))
	for i, img := range images {
		parts = append(parts, genai.Text(fmt.Sprintf("图片%d URL: %s", i+1, img.URL)))
		parts = append(parts, genai.ImageData(img.Format, img.Data))
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, err
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}

	var out strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				out.WriteString(string(txt))
			}
		}
		// one candidate is enough
		if out.Len() > 0 {
			break
		}
	}
	if out.Len() == 0 {
		return nil, errors.New("model returned no content")
	}
	return []byte(out.String()), nil
}
