package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const anthropicVersion = "2023-06-01"

// Generator performs text generation over HTTP. It speaks the Anthropic
// Messages API, OpenAI Chat Completions, or the OpenAI Responses API.
type Generator struct {
	baseURL   string
	apiKey    string
	apiType   string // "messages", "chat_completions" or "responses"
	telemetry bool   // send OpenRouter attribution headers
	client    *http.Client
}

// NewGenerator creates a generator from config.
func NewGenerator(baseURL, apiKey, apiType string, telemetry bool) *Generator {
	return &Generator{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiType:   apiType,
		telemetry: telemetry,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SendMessage implements Backend.
func (g *Generator) SendMessage(ctx context.Context, turns []Turn, opts SendOptions) (string, error) {
	switch g.apiType {
	case "chat_completions":
		return g.sendChatCompletions(ctx, turns, opts)
	case "responses":
		return g.sendResponses(ctx, turns, opts)
	default:
		return g.sendMessages(ctx, turns, opts)
	}
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// --- Anthropic Messages API ---

type messagesRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system,omitempty"`
	Messages    []messageInput `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
}

type messageInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []messagesContent `json:"content"`
	Error   *apiError         `json:"error,omitempty"`
}

type messagesContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (g *Generator) sendMessages(ctx context.Context, turns []Turn, opts SendOptions) (string, error) {
	reqBody := messagesRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxOutputTokens,
		System:      opts.SystemInstruction,
		Messages:    make([]messageInput, 0, len(turns)),
		Temperature: opts.Temperature,
	}
	for _, t := range turns {
		reqBody.Messages = append(reqBody.Messages, messageInput{Role: t.Role, Content: t.Content})
	}

	body, err := g.post(ctx, "/messages", reqBody)
	if err != nil {
		return "", err
	}

	var result messagesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}

// --- Chat Completions API ---

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

func (g *Generator) sendChatCompletions(ctx context.Context, turns []Turn, opts SendOptions) (string, error) {
	reqBody := chatCompletionsRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxOutputTokens,
		Temperature: opts.Temperature,
	}
	if opts.SystemInstruction != "" {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "system", Content: opts.SystemInstruction})
	}
	for _, t := range turns {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: t.Role, Content: t.Content})
	}

	body, err := g.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}

	var result chatCompletionsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}

// --- Responses API ---

type responsesRequest struct {
	Model        string           `json:"model"`
	Instructions string           `json:"instructions,omitempty"`
	Input        []responsesInput `json:"input"`
	MaxTokens    int              `json:"max_output_tokens,omitempty"`
	Temperature  float64          `json:"temperature,omitempty"`
}

type responsesInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesResponse struct {
	Output []responsesOutput `json:"output"`
	Error  *apiError         `json:"error,omitempty"`
}

type responsesOutput struct {
	Type    string             `json:"type"`
	Content []responsesContent `json:"content,omitempty"`
}

type responsesContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (g *Generator) sendResponses(ctx context.Context, turns []Turn, opts SendOptions) (string, error) {
	reqBody := responsesRequest{
		Model:        opts.Model,
		Instructions: opts.SystemInstruction,
		MaxTokens:    opts.MaxOutputTokens,
		Temperature:  opts.Temperature,
	}
	for _, t := range turns {
		reqBody.Input = append(reqBody.Input, responsesInput{Role: t.Role, Content: t.Content})
	}

	body, err := g.post(ctx, "/responses", reqBody)
	if err != nil {
		return "", err
	}

	var result responsesResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error: %s", result.Error.Message)
	}

	for _, out := range result.Output {
		if out.Type == "message" {
			for _, c := range out.Content {
				if c.Type == "output_text" {
					return c.Text, nil
				}
			}
		}
	}
	// An empty output is the model declining to suggest, not a failure.
	return "", nil
}

// post sends a JSON request and returns the body of a 200 response.
func (g *Generator) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	g.setHeaders(httpReq)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// setHeaders sets common headers for API requests.
func (g *Generator) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	switch g.apiType {
	case "chat_completions", "responses":
		if g.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.apiKey)
		}
	default:
		req.Header.Set("anthropic-version", anthropicVersion)
		if g.apiKey != "" {
			req.Header.Set("x-api-key", g.apiKey)
		}
	}
	if g.telemetry {
		req.Header.Set("X-Title", "nextline - predicts your next prompt")
		req.Header.Set("HTTP-Referer", "https://github.com/Paranoid-AF/nextline")
	}
}
