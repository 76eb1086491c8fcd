// Package processor orchestrates one inbound message: load the
// conversation, let the dialogue engine decide, deliver the replies,
// persist the outcome and keep the audit trail.
package processor

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/taborda-io/taborda/internal/connector"
	"github.com/taborda-io/taborda/internal/conversation"
	"github.com/taborda-io/taborda/internal/dialog"
	"github.com/taborda-io/taborda/internal/ticket"
	"github.com/taborda-io/taborda/pkg/protocol"
)

// Pacing bounds the simulated-typing delay applied around each send. A
// zero Max disables pacing entirely (used by tests and the webhook
// transport).
type Pacing struct {
	Min time.Duration
	Max time.Duration
}

const lockStripes = 64

// Processor handles one turn at a time per user. Turns for different
// users run concurrently; turns for the same user are serialized so the
// load-decide-persist sequence never interleaves.
type Processor struct {
	Conversations conversation.Store
	Tickets       ticket.Store
	Engine        *dialog.Engine
	Pacing        Pacing
	TurnTimeout   time.Duration
	Logger        *slog.Logger

	sleep func(ctx context.Context, d time.Duration)
	locks [lockStripes]sync.Mutex
}

// New creates a processor with default pacing and turn timeout.
func New(convs conversation.Store, tickets ticket.Store, engine *dialog.Engine, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Conversations: convs,
		Tickets:       tickets,
		Engine:        engine,
		Pacing:        Pacing{Min: 1500 * time.Millisecond, Max: 3500 * time.Millisecond},
		TurnTimeout:   30 * time.Second,
		Logger:        logger,
		sleep:         sleepCtx,
	}
}

// Handler adapts the processor to a connector's inbound callback, binding
// replies to that connector's transport.
func (p *Processor) Handler(out connector.Sender) connector.InboundHandler {
	return func(ctx context.Context, msg connector.InboundMessage) error {
		return p.Handle(ctx, out, msg)
	}
}

// Handle processes one inbound message end to end.
func (p *Processor) Handle(ctx context.Context, out connector.Sender, msg connector.InboundMessage) error {
	if !msg.IsDirect {
		p.Logger.Debug("ignoring non-direct message", "channel", msg.Channel, "chat", msg.ChatID)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.TurnTimeout)
	defer cancel()

	userID := conversationKey(msg)
	mu := p.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	conv, err := p.Conversations.Load(ctx, userID)
	if err != nil {
		return p.fail(ctx, out, msg.ChatID, userID, "load conversation", err)
	}
	if conv == nil {
		conv = protocol.NewConversation(userID)
	}

	if err := p.Conversations.AppendLog(ctx, &protocol.LogEntry{
		UserID:    userID,
		Direction: protocol.DirectionInbound,
		Body:      msg.Text,
		State:     conv.State,
	}); err != nil {
		return p.fail(ctx, out, msg.ChatID, userID, "append inbound log", err)
	}

	res := p.Engine.Decide(conv.State, conv.Fields, msg.Text)
	if res.Healed {
		p.Logger.Warn("unrecognized conversation state, restarting flow",
			"user", userID, "state", string(conv.State))
	}

	for _, text := range res.Replies {
		p.pace(ctx, out, msg.ChatID)
		if err := out.Send(ctx, connector.OutboundMessage{ChatID: msg.ChatID, Text: text}); err != nil {
			p.Logger.Error("send failed", "user", userID, "error", err)
			return fmt.Errorf("processor: send: %w", err)
		}
	}

	if res.Effect == dialog.EffectFinalize {
		return p.finalize(ctx, out, msg.ChatID, conv, res)
	}

	if conv.State != res.Next || !maps.Equal(conv.Fields, res.Fields) {
		conv.State = res.Next
		conv.Fields = res.Fields
		conv.Status = protocol.StatusOpen
		if err := p.Conversations.Upsert(ctx, conv); err != nil {
			return p.fail(ctx, out, msg.ChatID, userID, "persist conversation", err)
		}
	} else if err := p.Conversations.Touch(ctx, userID); err != nil {
		// A rejected answer is still activity: refresh the idle clock so
		// the reaper never closes a conversation mid-argument.
		return p.fail(ctx, out, msg.ChatID, userID, "touch conversation", err)
	}

	p.logOutbound(ctx, userID, res.Replies, res.Next)
	return nil
}

// finalize creates the completed ticket and resets the conversation.
// There is no generic persist step on this path: the reset is the only
// write against the conversation record.
func (p *Processor) finalize(ctx context.Context, out connector.Sender, chatID string, conv *protocol.Conversation, res dialog.Result) error {
	tk := protocol.TicketFromFields(conv.UserID, conv.Fields, protocol.TicketCompleted)
	number, err := p.Tickets.Create(ctx, tk)
	if err != nil {
		return p.fail(ctx, out, chatID, conv.UserID, "create ticket", err)
	}

	confirm := dialog.TicketRegisteredText(number)
	p.pace(ctx, out, chatID)
	if err := out.Send(ctx, connector.OutboundMessage{ChatID: chatID, Text: confirm}); err != nil {
		p.Logger.Error("send failed", "user", conv.UserID, "error", err)
		return fmt.Errorf("processor: send: %w", err)
	}

	if err := p.Conversations.Reset(ctx, conv.UserID); err != nil {
		return p.fail(ctx, out, chatID, conv.UserID, "reset conversation", err)
	}

	p.logOutbound(ctx, conv.UserID, append(res.Replies, confirm), res.Next)
	p.Logger.Info("ticket created", "user", conv.UserID, "ticket", number)
	return nil
}

// logOutbound appends audit entries for sent replies, tagged with the
// post-transition state. Audit failures are reported but do not fail the
// turn: the replies are already on the wire.
func (p *Processor) logOutbound(ctx context.Context, userID string, replies []string, state protocol.State) {
	for _, text := range replies {
		err := p.Conversations.AppendLog(ctx, &protocol.LogEntry{
			UserID:    userID,
			Direction: protocol.DirectionOutbound,
			Body:      text,
			State:     state,
		})
		if err != nil {
			p.Logger.Error("append outbound log failed", "user", userID, "error", err)
		}
	}
}

// fail reports a storage error, sends the generic apology and wraps the
// cause. The user never sees internal detail; their next message retries
// from the last persisted state.
func (p *Processor) fail(ctx context.Context, out connector.Sender, chatID, userID, op string, err error) error {
	p.Logger.Error("turn failed", "user", userID, "op", op, "error", err)
	if sendErr := out.Send(ctx, connector.OutboundMessage{ChatID: chatID, Text: dialog.InternalErrorText}); sendErr != nil {
		p.Logger.Error("apology send failed", "user", userID, "error", sendErr)
	}
	return fmt.Errorf("processor: %s: %w", op, err)
}

func (p *Processor) pace(ctx context.Context, out connector.Sender, chatID string) {
	if p.Pacing.Max <= 0 {
		return
	}
	if _, ok := out.(connector.InstantSender); ok {
		return
	}
	p.sleep(ctx, p.delay())
	if err := out.Typing(ctx, chatID); err != nil {
		p.Logger.Debug("typing indicator failed", "chat", chatID, "error", err)
	}
	p.sleep(ctx, p.delay())
}

func (p *Processor) delay() time.Duration {
	if p.Pacing.Max <= p.Pacing.Min {
		return p.Pacing.Min
	}
	return p.Pacing.Min + rand.N(p.Pacing.Max-p.Pacing.Min)
}

// conversationKey namespaces the storage key by transport, so equal chat
// IDs on different platforms never share a conversation record.
func conversationKey(msg connector.InboundMessage) string {
	return msg.Channel + ":" + msg.ChatID
}

func (p *Processor) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &p.locks[h.Sum32()%lockStripes]
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
