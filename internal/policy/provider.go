package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"alphatrade/internal/logger"
)

// ChatClient is the minimal reasoning-source transport.
type ChatClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIChatClient talks to an OpenAI-compatible /v1/chat/completions
// endpoint. Retries 429/5xx with backoff, honoring Retry-After.
type OpenAIChatClient struct {
	BaseURL         string
	APIKey          string
	Model           string
	ReasoningEffort string
	Timeout         time.Duration
	// MaxRetries counts extra attempts on 429/5xx; 0 means default (2).
	MaxRetries int
}

func (c *OpenAIChatClient) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}

	// Normalize the base URL so a configured ".../chat/completions" does not
	// produce a doubled path.
	url := strings.TrimRight(c.BaseURL, "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions") + "/chat/completions"

	messages := []map[string]string{}
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})

	body := map[string]any{
		"model":           c.Model,
		"messages":        messages,
		"temperature":     0.2,
		"response_format": map[string]string{"type": "json_object"},
	}
	if effort := strings.TrimSpace(c.ReasoningEffort); effort != "" {
		body["reasoning_effort"] = effort
	}
	b, _ := json.Marshal(body)

	logger.LogLLMRequest(c.Model, systemPrompt, userPrompt)

	httpc := &http.Client{Timeout: timeout}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
		}

		resp, err := httpc.Do(req)
		if err != nil {
			lastErr = err
			break
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			derr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if derr != nil {
				return "", derr
			}
			if len(r.Choices) == 0 {
				return "", fmt.Errorf("empty choices")
			}
			content := r.Choices[0].Message.Content
			logger.LogLLMResponse(c.Model, content)
			return content, nil
		}

		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		retryAfter := resp.Header.Get("Retry-After")
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if retriable(resp.StatusCode) && attempt < maxRetries {
			sleepBeforeRetry(ctx, retryAfter, attempt)
			continue
		}
		break
	}
	return "", lastErr
}

func retriable(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func sleepBeforeRetry(ctx context.Context, retryAfter string, attempt int) {
	wait := time.Duration(0)
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			wait = time.Duration(secs) * time.Second
		}
	}
	if wait == 0 {
		wait = (800 * time.Millisecond) << attempt
		if wait > 8*time.Second {
			wait = 8 * time.Second
		}
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}
