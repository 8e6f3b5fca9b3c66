package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goslack "github.com/slack-go/slack"
)

// SlackSink posts a high-urgency ticket alert to a single Slack channel.
// It mirrors a plain bot-token client: no RTM, no interactive components.
type SlackSink struct {
	client  *goslack.Client
	channel string
}

// NewSlackSink creates a Slack sink. If botToken or channel is empty the
// sink is considered disabled; IsEnabled reports this so callers can skip
// registering it rather than sending into a no-op.
func NewSlackSink(botToken, channel string) *SlackSink {
	if botToken == "" || channel == "" {
		return &SlackSink{}
	}
	return &SlackSink{
		client:  goslack.New(botToken),
		channel: channel,
	}
}

// IsEnabled reports whether this sink has a usable token and channel.
func (s *SlackSink) IsEnabled() bool {
	return s.client != nil && s.channel != ""
}

func (s *SlackSink) Name() string { return "slack" }

// Send posts a formatted alert block for t to the configured channel.
func (s *SlackSink) Send(ctx context.Context, t Task) error {
	if !s.IsEnabled() {
		return nil
	}

	text := fmt.Sprintf("*High urgency ticket* `%s` for tenant `%s`\n> %s",
		t.Ticket.ExternalID, t.TenantID, t.Ticket.Subject)

	block := goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
		nil, nil,
	)

	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		goslack.MsgOptionBlocks(block),
		goslack.MsgOptionText(text, false),
	)
	if err != nil {
		return classifySlackError(err)
	}
	return nil
}

// classifySlackError maps the slack-go client's error types onto SendError
// so dispatch can apply the same 429/4xx/5xx rules to Slack as it does to
// the plain webhook sink, rather than treating every Slack error as an
// opaque breaker-counted failure.
func classifySlackError(err error) error {
	var rateLimited *goslack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return &SendError{StatusCode: http.StatusTooManyRequests, Err: err}
	}

	var statusErr *goslack.StatusCodeError
	if errors.As(err, &statusErr) {
		return &SendError{StatusCode: statusErr.Code, Err: err}
	}

	return fmt.Errorf("posting slack message: %w", err)
}
