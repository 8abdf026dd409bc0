// Package slack delivers findings to a Slack channel via the Web API.
package slack

import (
	"context"
	"fmt"
	"strings"

	slackapi "github.com/slack-go/slack"

	"github.com/xraph/steward/playbook"
	"github.com/xraph/steward/sink"
)

// Compile-time check that Sink implements sink.Sink.
var _ sink.Sink = (*Sink)(nil)

// poster is the slice of the Slack client the sink uses. slackapi.Client
// satisfies it; tests substitute a fake.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Sink posts each finding as one Slack message. Markdown blocks become
// mrkdwn sections; file blocks are rendered as fenced code snippets
// (truncated to Slack's section limit).
type Sink struct {
	client  poster
	channel string
}

// sectionLimit is Slack's maximum text length for a section block.
const sectionLimit = 3000

// New creates a Slack sink posting to the given channel.
func New(token, channel string) *Sink {
	return &Sink{client: slackapi.New(token), channel: channel}
}

// NewWithClient creates a Sink with a caller-provided client.
func NewWithClient(client poster, channel string) *Sink {
	return &Sink{client: client, channel: channel}
}

// Name implements sink.Sink.
func (s *Sink) Name() string { return "slack" }

// Write implements sink.Sink.
func (s *Sink) Write(ctx context.Context, f *playbook.Finding) error {
	blocks := buildBlocks(f)
	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slackapi.MsgOptionText(f.Title, false),
		slackapi.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("slack: post finding %q: %w", f.Title, err)
	}
	return nil
}

func buildBlocks(f *playbook.Finding) []slackapi.Block {
	blocks := []slackapi.Block{
		slackapi.NewHeaderBlock(
			slackapi.NewTextBlockObject(slackapi.PlainTextType, truncate(f.Title, 150), false, false),
		),
	}
	if f.Source != "" {
		blocks = append(blocks, slackapi.NewContextBlock("",
			slackapi.NewTextBlockObject(slackapi.MarkdownType, "source: "+f.Source, false, false),
		))
	}
	for _, b := range f.Blocks {
		switch b.Kind {
		case playbook.KindMarkdown:
			blocks = append(blocks, slackapi.NewSectionBlock(
				slackapi.NewTextBlockObject(slackapi.MarkdownType, truncate(b.Text, sectionLimit), false, false),
				nil, nil,
			))
		case playbook.KindFile:
			text := fmt.Sprintf("*%s*\n```%s```", b.Filename, truncate(string(b.Data), sectionLimit-len(b.Filename)-10))
			blocks = append(blocks, slackapi.NewSectionBlock(
				slackapi.NewTextBlockObject(slackapi.MarkdownType, text, false, false),
				nil, nil,
			))
		}
	}
	return blocks
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := strings.ToValidUTF8(s[:n-3], "")
	return cut + "..."
}
