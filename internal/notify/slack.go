package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	slacklib "github.com/slack-go/slack"
)

// WebhookPoster posts a message to a Slack incoming webhook.
type WebhookPoster func(ctx context.Context, url string, msg *slacklib.WebhookMessage) error

// SlackWebhook is a Sink posting to a Slack incoming webhook.
type SlackWebhook struct {
	url  string
	post WebhookPoster
}

var _ Sink = (*SlackWebhook)(nil) //nolint:gochecknoglobals // compile-time check

func NewSlackWebhook(url string) *SlackWebhook {
	return &SlackWebhook{url: url, post: slacklib.PostWebhookContext}
}

func (s *SlackWebhook) Name() string { return "slack" }

func (s *SlackWebhook) Send(ctx context.Context, a Alert) error {
	if err := s.post(ctx, s.url, BuildWebhookMessage(a, time.Now())); err != nil {
		return fmt.Errorf("notify.SlackWebhook.Send: %w", err)
	}
	return nil
}

// BuildWebhookMessage renders a as a single danger-colored attachment.
func BuildWebhookMessage(a Alert, at time.Time) *slacklib.WebhookMessage {
	fields := make([]slacklib.AttachmentField, 0, len(a.Fields))
	for _, f := range a.Fields {
		fields = append(fields, slacklib.AttachmentField{
			Title: f.Label,
			Value: f.Value,
			Short: len(f.Value) <= 40,
		})
	}

	return &slacklib.WebhookMessage{
		Text: ":rotating_light: " + a.Summary,
		Attachments: []slacklib.Attachment{{
			Color:  "danger",
			Fields: fields,
			Footer: "tillpoint",
			Ts:     jsonNumber(at.Unix()),
		}},
	}
}

func jsonNumber(n int64) json.Number {
	return json.Number(strconv.FormatInt(n, 10))
}
