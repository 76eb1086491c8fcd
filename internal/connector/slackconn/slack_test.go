package slackconn

import (
	"testing"

	"github.com/slack-go/slack/slackevents"
)

func TestInboundFromEvent(t *testing.T) {
	ev := &slackevents.MessageEvent{
		User:        "U123",
		Channel:     "D456",
		ChannelType: "im",
		Text:        "oi",
	}

	in := inboundFromEvent(ev)
	if in.Channel != "slack" {
		t.Errorf("channel = %q", in.Channel)
	}
	if in.SenderID != "U123" || in.ChatID != "D456" {
		t.Errorf("ids = %q / %q", in.SenderID, in.ChatID)
	}
	if !in.IsDirect {
		t.Error("im conversation must be direct")
	}
}

func TestInboundFromChannelEvent(t *testing.T) {
	ev := &slackevents.MessageEvent{
		User:        "U123",
		Channel:     "C789",
		ChannelType: "channel",
		Text:        "oi",
	}

	if inboundFromEvent(ev).IsDirect {
		t.Error("channel message must not be direct")
	}
}
