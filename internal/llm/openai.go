package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	chatCompletionsPath    = "/chat/completions"
	responseBodyLogLimit   = 512
	unsupportedContentWrap = 240
)

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	HTTPBaseURL         string
	APIKey              string
	ModelIdentifier     string
	MaxCompletionTokens int
	Temperature         float64
	HTTPClient          *http.Client
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model               string          `json:"model"`
	Messages            []ChatMessage   `json:"messages"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	Temperature         *float64        `json:"temperature,omitempty"`
	ResponseFormat      *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat asks the provider for a constrained reply, e.g. json_object.
type ResponseFormat struct {
	Type string `json:"type"`
}

type chatMessageResponse struct {
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Refusal   json.RawMessage `json:"refusal,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

type chatCompletionChoice struct {
	Message      chatMessageResponse `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type ChatCompletionResponse struct {
	Choices []chatCompletionChoice `json:"choices"`
}

// Complete sends a system/user prompt pair using the client's defaults and
// returns the trimmed text of the first choice. When wantJSON is set the
// request asks for a json_object response.
func (c Client) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, wantJSON bool) (string, error) {
	requestPayload := ChatCompletionRequest{
		Model:               c.ModelIdentifier,
		MaxCompletionTokens: maxTokens,
	}
	if requestPayload.MaxCompletionTokens <= 0 {
		requestPayload.MaxCompletionTokens = c.MaxCompletionTokens
	}
	if trimmed := strings.TrimSpace(systemPrompt); trimmed != "" {
		requestPayload.Messages = append(requestPayload.Messages, ChatMessage{Role: "system", Content: trimmed})
	}
	requestPayload.Messages = append(requestPayload.Messages, ChatMessage{Role: "user", Content: strings.TrimSpace(userPrompt)})
	// Several current models only accept their server-side default
	// temperature, so 0 and 1 are omitted rather than sent.
	if c.Temperature != 0 && c.Temperature != 1 {
		temperature := c.Temperature
		requestPayload.Temperature = &temperature
	}
	if wantJSON {
		requestPayload.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	return c.CreateChatCompletion(ctx, requestPayload)
}

func (c Client) CreateChatCompletion(ctx context.Context, requestPayload ChatCompletionRequest) (string, error) {
	requestBytes, marshalErr := json.Marshal(requestPayload)
	if marshalErr != nil {
		return "", marshalErr
	}
	httpRequest, buildErr := http.NewRequestWithContext(ctx, http.MethodPost, c.HTTPBaseURL+chatCompletionsPath, bytes.NewReader(requestBytes))
	if buildErr != nil {
		return "", buildErr
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Authorization", "Bearer "+c.APIKey)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	httpResponse, httpErr := httpClient.Do(httpRequest)
	if httpErr != nil {
		return "", httpErr
	}
	defer func(closer io.ReadCloser) { _ = closer.Close() }(httpResponse.Body)

	bodyBytes, readErr := io.ReadAll(httpResponse.Body)
	if readErr != nil {
		return "", readErr
	}
	bodyPreview := truncateForLog(string(bodyBytes), responseBodyLogLimit)

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode >= 300 {
		return "", fmt.Errorf("llm http error %d: %s", httpResponse.StatusCode, bodyPreview)
	}

	var completion ChatCompletionResponse
	if decodeErr := json.Unmarshal(bodyBytes, &completion); decodeErr != nil {
		return "", fmt.Errorf("decode chat completion: %w (body=%s)", decodeErr, bodyPreview)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices (status=%d body=%s)", httpResponse.StatusCode, bodyPreview)
	}

	choice := completion.Choices[0]
	content, extractErr := extractMessageContent(choice.Message)
	if extractErr != nil {
		return "", fmt.Errorf("chat completion parse error: %w (body=%s)", extractErr, bodyPreview)
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		if refusal := decodeRefusal(choice.Message.Refusal); refusal != "" {
			return "", fmt.Errorf("chat completion refusal: %s (status=%d body=%s)", refusal, httpResponse.StatusCode, bodyPreview)
		}
		return "", fmt.Errorf("chat completion returned empty message (finish_reason=%s body=%s)", choice.FinishReason, bodyPreview)
	}
	return trimmed, nil
}

func extractMessageContent(message chatMessageResponse) (string, error) {
	if len(message.Content) == 0 || string(message.Content) == "null" {
		if refusal := decodeRefusal(message.Refusal); refusal != "" {
			return "", fmt.Errorf("chat completion refusal: %s", refusal)
		}
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(message.Content, &asString); err == nil {
		return asString, nil
	}

	if text, ok := extractRichText(message.Content); ok {
		return text, nil
	}

	if refusal := decodeRefusal(message.Refusal); refusal != "" {
		return "", fmt.Errorf("chat completion refusal: %s", refusal)
	}
	if len(message.ToolCalls) > 0 && string(message.ToolCalls) != "null" {
		return "", fmt.Errorf("chat completion produced tool_calls: %s", truncateForLog(string(message.ToolCalls), unsupportedContentWrap))
	}
	return "", fmt.Errorf("unsupported message content: %s", truncateForLog(string(message.Content), unsupportedContentWrap))
}

// extractRichText handles providers that return content as an array of
// typed parts instead of a plain string.
func extractRichText(raw json.RawMessage) (string, bool) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", false
	}
	fragments := flattenText(data)
	if len(fragments) == 0 {
		return "", false
	}
	combined := strings.TrimSpace(strings.Join(fragments, "\n"))
	if combined == "" {
		return "", false
	}
	return combined, true
}

func flattenText(value any) []string {
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	case []any:
		var collected []string
		for _, item := range v {
			collected = append(collected, flattenText(item)...)
		}
		return collected
	case map[string]any:
		for _, key := range []string{"text", "content", "value"} {
			if nested, ok := v[key]; ok {
				return flattenText(nested)
			}
		}
		var collected []string
		for _, nested := range v {
			collected = append(collected, flattenText(nested)...)
		}
		return collected
	default:
		return nil
	}
}

func decodeRefusal(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var refusalString string
	if err := json.Unmarshal(raw, &refusalString); err == nil {
		return strings.TrimSpace(refusalString)
	}
	if text, ok := extractRichText(raw); ok {
		return text
	}
	return strings.TrimSpace(truncateForLog(string(raw), 200))
}

func truncateForLog(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
