package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/model"
	"signalexecutor/src/rules"
)

// FallbackClient calls the language-model extraction service with the raw
// message plus the cached context bundle. A non-JSON or incomplete reply is
// a parse failure, not an error.
type FallbackClient struct {
	http    *resty.Client
	apiKey  string
	model   string
	context rules.FallbackContext
}

func NewFallbackClient(cfg Config, fallbackCtx rules.FallbackContext) *FallbackClient {
	httpClient := resty.New().
		SetBaseURL(cfg.FallbackBaseURL).
		SetTimeout(cfg.FallbackTimeout).
		SetRetryCount(1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		AddRetryCondition(isRetryableResp)

	return &FallbackClient{
		http:    httpClient,
		apiKey:  cfg.FallbackAPIKey,
		model:   cfg.FallbackModel,
		context: fallbackCtx,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract sends the message and parses the structured reply. Returns
// (nil, nil) when the service answers but the reply carries no usable intent.
func (c *FallbackClient) Extract(ctx context.Context, text string) (*model.Intent, error) {
	messages := []chatMessage{
		{Role: "system", Content: c.context.Instructions},
	}
	for _, ex := range c.context.Examples {
		messages = append(messages,
			chatMessage{Role: "user", Content: ex.Text},
			chatMessage{Role: "assistant", Content: ex.Intent},
		)
	}
	messages = append(messages, chatMessage{Role: "user", Content: text})

	var reply chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(chatRequest{Model: c.model, Messages: messages}).
		SetResult(&reply).
		Post("/v1/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("fallback request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fallback service status %d", resp.StatusCode())
	}

	if len(reply.Choices) == 0 {
		return nil, nil
	}

	intent := decodeIntentReply(reply.Choices[0].Message.Content)
	if intent == nil {
		logger.WithField("reply_len", len(reply.Choices[0].Message.Content)).
			Debug("fallback reply carried no usable intent")
	}
	return intent, nil
}

// decodeIntentReply digs the first JSON object out of a possibly chatty reply
// and maps it onto an intent. Anything malformed yields nil.
func decodeIntentReply(content string) *model.Intent {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil
	}

	var intent model.Intent
	if err := json.Unmarshal([]byte(content[start:end+1]), &intent); err != nil {
		return nil
	}

	intent.Action = strings.ToUpper(strings.TrimSpace(intent.Action))
	intent.Symbol = strings.ToUpper(strings.TrimSpace(intent.Symbol))
	intent.Kind = strings.ToUpper(strings.TrimSpace(intent.Kind))

	if intent.Action != model.ActionBuy && intent.Action != model.ActionSell {
		return nil
	}
	if !intent.HasMinimum() {
		return nil
	}
	return &intent
}
