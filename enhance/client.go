package enhance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/"
	DefaultAPIVersion = "v1beta"
	DefaultModel      = "gemini-1.5-flash"
	DefaultTimeout    = 30 * time.Second
)

var (
	ErrMissingAPIKey  = errors.New("enhance: missing api key")
	ErrEmptyResponse  = errors.New("enhance: provider returned no text")
	ErrProviderStatus = errors.New("enhance: provider error")
)

const instruction = `You are an expert prompt engineer. Your task is to enhance user prompts to make them more effective for AI systems.

Guidelines for enhancement:
- Maintain the original intent and meaning
- Add clarity, specificity, and structure
- Make the prompt more effective for AI systems
- Do not change the fundamental request or add unintended requirements
- Format the enhanced prompt in a clean, readable way
- Do not add any additional text or instructions
- Keep the prompt concise and to the point
- Maintain the original language and terminology used by the user

Original prompt: %s

Enhanced prompt:`

// BuildPrompt wraps the user's prompt in the enhancement instruction
func BuildPrompt(original string) string {
	return fmt.Sprintf(instruction, original)
}

// Client calls Gemini generateContent through the genai SDK. The API key
// differs per caller, so a genai client is built for every call.
type Client struct {
	http    *http.Client
	baseURL string
	model   string
}

func NewClient() *Client {
	return &Client{
		http:    &http.Client{Timeout: DefaultTimeout},
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
	}
}

func (c *Client) WithBaseURL(base string) *Client {
	if base != "" {
		c.baseURL = base
	}
	return c
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	if h != nil {
		c.http = h
	}
	return c
}

// WithModel sets the model used when the caller does not pick one
func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// Enhance rewrites prompt with the given model, falling back to the client
// default when model is empty. The result is trimmed.
func (c *Client) Enhance(ctx context.Context, apiKey, model, prompt string) (string, error) {
	if strings.TrimSpace(apiKey) == "" {
		return "", ErrMissingAPIKey
	}
	if model == "" {
		model = c.model
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.http,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    c.baseURL,
			APIVersion: DefaultAPIVersion,
		},
	})
	if err != nil {
		return "", fmt.Errorf("enhance: build client: %w", err)
	}

	resp, err := gc.Models.GenerateContent(ctx, model, genai.Text(BuildPrompt(prompt)), nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: %d %s", ErrProviderStatus, apiErr.Code, apiErr.Message)
		}
		return "", fmt.Errorf("enhance: call provider: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
