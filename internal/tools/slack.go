package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NewSlackTool 返回通过 Slack Incoming Webhook 发送消息的 send_slack_message 工具。
func NewSlackTool(webhookURL string, client *http.Client) Tool {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return NewFunctionTool(
		"send_slack_message",
		"Send a message to the configured Slack workspace.",
		objectSchema(map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Message text (Slack mrkdwn supported)",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Optional channel override, e.g. #general",
			},
		}, "text"),
		func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			payload := map[string]string{"text": stringArg(args, "text", "")}
			if payload["text"] == "" {
				return nil, fmt.Errorf("send_slack_message: text must be a non-empty string")
			}
			if channel := stringArg(args, "channel", ""); channel != "" {
				payload["channel"] = channel
			}
			body, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
			if err != nil {
				return nil, fmt.Errorf("failed to create slack request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("failed to call slack webhook: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("slack webhook returned non-200 status: %s", resp.Status)
			}
			return map[string]interface{}{"sent": true}, nil
		},
	)
}
