package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

// Prompt sends prompt, preceded by the system prompt and recent history, and
// returns the full reply. The reply is streamed from the API and
// accumulated; onChunk, if given, sees every fragment as it arrives.
func (c *Client) Prompt(ctx context.Context, prompt string) (string, error) {
	return c.PromptWithStream(ctx, prompt, nil)
}

func (c *Client) PromptWithStream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	if c.prompts != nil {
		c.prompts.Add(ctx, 1)
	}

	reqBody := requestBody{
		Model:    c.model,
		Messages: c.messagesFor(prompt),
		Stream:   true,
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", recordError(span, fmt.Errorf("error marshalling JSON: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", recordError(span, fmt.Errorf("error creating HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", recordError(span, fmt.Errorf("error sending request: %w", err))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		return "", recordError(span, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status})
	}

	var (
		response   strings.Builder
		firstChunk = true
	)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
		if len(chunk) == 0 {
			continue
		}
		if chunk == endMessage {
			break
		}

		var responseBody streamingResponseBody
		if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
			logger.WarnContext(ctx, "skipping malformed chunk", "error", err)
			continue
		}
		if len(responseBody.Choices) == 0 {
			continue
		}
		if firstChunk {
			firstChunk = false
			span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestStart).Seconds()))
		}

		content := responseBody.Choices[0].Delta.Content
		response.WriteString(content)
		if onChunk != nil && content != "" {
			onChunk(content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", recordError(span, fmt.Errorf("error reading streamed response: %w", err))
	}

	reply := strings.TrimSpace(response.String())
	c.remember(Exchange{Prompt: prompt, Response: reply})
	span.SetAttributes(attribute.Int("response.length", len(reply)))
	return reply, nil
}

// StatusError is returned when the API answers with anything but 200 OK.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-OK HTTP status: %s", e.Status)
}

func recordError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type requestBody struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role         string  `json:"role,omitempty"`
			Content      string  `json:"content,omitempty"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
}
