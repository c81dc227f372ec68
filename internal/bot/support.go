package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/conversation"
	"github.com/lojf/storebot/internal/services"
)

func (b *Bot) registerSupport(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowSupport, stEnteringSupportMessage).
		Trigger(flowSupport, conversation.Any(conversation.CommandIs("/support"), conversation.TextIs(lblSupport))).
		Prompt(stEnteringSupportMessage, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "💬 Write your message for support.", cancelOnly())
		}).
		On(stEnteringSupportMessage, conversation.Text, b.onSupportMessage)

	m.DefineFlow(flowGuide, stSelectingGuideDevice).
		Trigger(flowGuide, conversation.Any(conversation.CommandIs("/apps"), conversation.TextIs(lblGuide))).
		Prompt(stSelectingGuideDevice, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "📲 Which device do you need apps for?", options(b.catalog.DeviceTypes()))
		}).
		On(stSelectingGuideDevice, conversation.Text, b.onGuideDevice)
}

func (b *Bot) onSupportMessage(ctx context.Context, s *session, ev event) (step, error) {
	msg, err := b.support.Submit(ctx, s.UserID, ev.Text)
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		return conversation.Retry("⚠️ The message cannot be empty."), nil
	case err != nil:
		return step{}, err
	}
	u, err := b.users.Get(ctx, s.UserID)
	if err != nil {
		return step{}, err
	}
	notice := fmt.Sprintf("📩 <b>Support message #%d</b>\nFrom: %s (<code>%d</code>)\n\n%s",
		msg.ID, esc(u.DisplayName()), u.ID, esc(msg.Text))
	id := strconv.FormatUint(uint64(msg.ID), 10)
	b.notifyAdmins(ctx, notice, InlineKeyboard(Row(Data("↩️ Reply", cbSupportReply+id))))
	return b.finish(ctx, s, "✅ Message sent. We will get back to you soon.")
}

func (b *Bot) onGuideDevice(ctx context.Context, s *session, ev event) (step, error) {
	opt, ok := config.Match(b.catalog.DeviceTypes(), ev.Text)
	if !ok {
		return conversation.Retry("⚠️ Please choose one of the listed devices."), nil
	}
	if len(opt.Links) == 0 {
		return b.finish(ctx, s, fmt.Sprintf("No apps listed for %s yet.", esc(opt.Label)))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📲 <b>Apps for %s</b>", esc(opt.Label))
	for _, l := range opt.Links {
		fmt.Fprintf(&sb, "\n• %s", esc(l))
	}
	return b.finish(ctx, s, sb.String())
}
