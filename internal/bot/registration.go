package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/conversation"
	"github.com/lojf/storebot/internal/models"
	"github.com/lojf/storebot/internal/services"
)

func (b *Bot) registerRegistration(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowRegistration, stRequestingContact, stRequestingFullName, stSelectingOS).
		Start(flowRegistration, b.startRegistration).
		Prompt(stRequestingContact, func(ctx context.Context, s *session, notice string) error {
			kb := ReplyKeyboard(
				Row(Button{Text: lblShare, RequestContact: true}),
				Row(Key(lblCancel)),
			)
			return b.ask(ctx, s, notice, "👋 Welcome! To register, tap the button below to share your phone number.", kb)
		}).
		On(stRequestingContact, conversation.Contact, b.onContact).
		Prompt(stRequestingFullName, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "✍️ Please send your <b>full name</b>.", cancelOnly())
		}).
		On(stRequestingFullName, conversation.Text, b.onFullName).
		Prompt(stSelectingOS, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "📱 Which operating system will you use?", options(b.catalog.DeviceTypes()))
		}).
		On(stSelectingOS, conversation.Text, b.onOS)
}

func (b *Bot) startRegistration(ctx context.Context, s *session, ev event) (step, error) {
	u, err := b.users.Get(ctx, s.UserID)
	if err != nil {
		return step{}, err
	}
	switch {
	case u.IsApproved:
		return b.finish(ctx, s, "✅ Your account is already approved.")
	case u.SubmittedAt != nil:
		b.reply(ctx, s.ChatID, "⏳ Your registration is waiting for an admin to review it. You will be notified here.", RemoveKeyboard())
		return conversation.End(), nil
	}
	return conversation.Goto(stRequestingContact), nil
}

func (b *Bot) onContact(ctx context.Context, s *session, ev event) (step, error) {
	if !ev.OwnContact() {
		return conversation.Retry("⚠️ Please share your own contact."), nil
	}
	phone := services.NormPhone(ev.Phone, b.cfg.DefaultCountryCode)
	if phone == "" {
		return conversation.Retry("⚠️ That phone number does not look valid."), nil
	}
	s.Scratch.Phone = phone
	return conversation.Goto(stRequestingFullName), nil
}

func (b *Bot) onFullName(ctx context.Context, s *session, ev event) (step, error) {
	name := strings.Join(strings.Fields(ev.Text), " ")
	if name == "" {
		return conversation.Retry("⚠️ The name cannot be empty."), nil
	}
	if len([]rune(name)) > 128 {
		return conversation.Retry("⚠️ That name is too long."), nil
	}
	s.Scratch.FullName = name
	return conversation.Goto(stSelectingOS), nil
}

func (b *Bot) onOS(ctx context.Context, s *session, ev event) (step, error) {
	opt, ok := config.Match(b.catalog.DeviceTypes(), ev.Text)
	if !ok {
		return conversation.Retry("⚠️ Please pick one of the listed systems."), nil
	}
	u, err := b.users.CompleteRegistration(ctx, s.UserID, services.Profile{
		Phone:    s.Scratch.Phone,
		FullName: s.Scratch.FullName,
		OS:       opt.Key,
	})
	switch {
	case errors.Is(err, services.ErrAlreadyApproved):
		return b.finish(ctx, s, "✅ Your account is already approved.")
	case err != nil:
		return step{}, err
	}

	b.notifyAdmins(ctx, registrationNotice(u, opt.Label), approvalButtons(u.ID))
	b.reply(ctx, s.ChatID, "✅ Registration submitted. An admin will review it shortly.", RemoveKeyboard())
	return conversation.End(), nil
}

func registrationNotice(u models.User, osLabel string) string {
	handle := "-"
	if u.Username != "" {
		handle = "@" + u.Username
	}
	return fmt.Sprintf("🆕 <b>New registration</b>\nID: <code>%d</code>\nUsername: %s\nName: %s\nPhone: %s\nOS: %s",
		u.ID, esc(handle), esc(u.FullName), esc(u.Phone), esc(osLabel))
}

func approvalButtons(userID int64) *Keyboard {
	id := strconv.FormatInt(userID, 10)
	return InlineKeyboard(Row(
		Data("✅ Approve", cbUserApprove+id),
		Data("❌ Reject", cbUserReject+id),
	))
}
