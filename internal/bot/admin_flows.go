package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lojf/storebot/internal/catalog"
	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/conversation"
	"github.com/lojf/storebot/internal/discount"
	"github.com/lojf/storebot/internal/ledger"
	"github.com/lojf/storebot/internal/models"
	"github.com/lojf/storebot/internal/services"
)

const listLimit = 20

func (b *Bot) registerAdmin(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowAdmin, stAdminMenu).
		Trigger(flowAdmin, conversation.Any(conversation.CommandIs("/admin"), conversation.TextIs(lblAdmin))).
		Prompt(stAdminMenu, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "🛠 <b>Admin panel</b>", adminKeyboard())
		}).
		On(stAdminMenu, conversation.Text, b.onAdminMenu)

	b.registerAdminCredit(m)
	b.registerAdminPrice(m)
	b.registerAdminContent(m)
	b.registerAdminCodes(m)
	b.registerAdminBroadcast(m)
	b.registerAdminSupport(m)
}

func adminKeyboard() *Keyboard {
	return ReplyKeyboard(
		Row(Key(lblCredit), Key(lblPrices)),
		Row(Key(lblContent), Key(lblCodes)),
		Row(Key(lblBroadcast), Key(lblInbox)),
		Row(Key(lblPendUsers), Key(lblPendReqs)),
		Row(Key(lblStats), Key(lblExit)),
	)
}

func (b *Bot) onAdminMenu(ctx context.Context, s *session, ev event) (step, error) {
	switch strings.TrimSpace(ev.Text) {
	case lblCredit:
		return conversation.Enter(flowAdminCredit), nil
	case lblPrices:
		return conversation.Enter(flowAdminPrice), nil
	case lblContent:
		return conversation.Enter(flowAdminContent), nil
	case lblCodes:
		return conversation.Enter(flowAdminCodes), nil
	case lblBroadcast:
		return conversation.Enter(flowAdminBroadcast), nil
	case lblInbox:
		return conversation.Enter(flowAdminSupport), nil
	case lblPendUsers:
		return conversation.Stay(), b.showPendingUsers(ctx, s.ChatID)
	case lblPendReqs:
		return conversation.Stay(), b.showPendingRequests(ctx, s.ChatID)
	case lblStats:
		return conversation.Stay(), b.showStats(ctx, s.ChatID)
	case lblExit:
		return b.finish(ctx, s, "👋 Left the admin panel.")
	}
	return conversation.Retry(msgUnmatched), nil
}

func (b *Bot) showPendingUsers(ctx context.Context, chatID int64) error {
	users, err := b.users.Pending(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		b.reply(ctx, chatID, "No registrations are waiting.", nil)
		return nil
	}
	for i, u := range users {
		if i == listLimit {
			b.reply(ctx, chatID, fmt.Sprintf("…and %d more.", len(users)-listLimit), nil)
			break
		}
		b.reply(ctx, chatID, registrationNotice(u, label(b.catalog.DeviceTypes(), u.RequestedOS)), approvalButtons(u.ID))
	}
	return nil
}

func (b *Bot) showPendingRequests(ctx context.Context, chatID int64) error {
	reqs, err := b.purchases.ListByStatus(ctx, models.RequestPending, listLimit)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		b.reply(ctx, chatID, "No purchase requests are waiting.", nil)
		return nil
	}
	for _, r := range reqs {
		q, err := b.purchases.Quote(ctx, r.ID)
		if err != nil {
			return err
		}
		b.reply(ctx, chatID, b.requestNotice(q), requestButtons(r.ID))
	}
	return nil
}

func (b *Bot) showStats(ctx context.Context, chatID int64) error {
	st, err := services.CollectStats(ctx, b.db)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("📊 <b>Statistics</b>\nUsers: %d\nApproved: %d\nAwaiting approval: %d\nCredit in circulation: %d\nDiscount codes: %d\nPending requests: %d\nSupport messages: %d (%d open)\nDiscount policy: %s",
		st.Users, st.Approved, st.PendingUsers, st.TotalCredit, st.DiscountCodes, st.PendingRequests,
		st.SupportTotal, st.SupportOpen, b.discounts.Policy())
	b.reply(ctx, chatID, text, nil)
	return nil
}

// backable lets an admin sub-flow state return to the admin menu.
func backable(h conversation.Handler[Scratch]) conversation.Handler[Scratch] {
	return func(ctx context.Context, s *session, ev event) (step, error) {
		if isBack(ev) {
			return conversation.Parent(), nil
		}
		return h(ctx, s, ev)
	}
}

// done reports the outcome of an admin sub-flow and returns to the admin menu,
// or to the main menu when the flow was started from a notification.
func (b *Bot) done(ctx context.Context, s *session, text string) (step, error) {
	if len(s.Parents) == 0 {
		return b.finish(ctx, s, text)
	}
	b.reply(ctx, s.ChatID, text, nil)
	return conversation.Parent(), nil
}

func parseUserID(text string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	return id, err == nil && id > 0
}

func (b *Bot) registerAdminCredit(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowAdminCredit, stAdminCreditTarget, stAdminCreditAmount).
		Prompt(stAdminCreditTarget, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "💳 Send the user ID or phone number whose credit you want to adjust.", backOnly())
		}).
		On(stAdminCreditTarget, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			id, miss, err := b.findUser(ctx, ev.Text)
			if err != nil {
				return step{}, err
			}
			if miss != "" {
				return conversation.Retry(miss), nil
			}
			s.Scratch.TargetID = id
			return conversation.Goto(stAdminCreditAmount), nil
		})).
		Prompt(stAdminCreditAmount, func(ctx context.Context, s *session, notice string) error {
			bal, err := b.ledger.Balance(ctx, s.Scratch.TargetID)
			if err != nil {
				return err
			}
			entries, err := b.ledger.Entries(ctx, s.Scratch.TargetID, 5)
			if err != nil {
				return err
			}
			var sb strings.Builder
			fmt.Fprintf(&sb, "Current balance of <code>%d</code>: <b>%d</b>", s.Scratch.TargetID, bal)
			if len(entries) > 0 {
				sb.WriteString("\n\nRecent activity:")
				for _, e := range entries {
					fmt.Fprintf(&sb, "\n• %+d %s → %d", e.Change, esc(e.Kind), e.BalanceAfter)
				}
			}
			sb.WriteString("\nSend the amount to add (e.g. 500) or subtract (e.g. -200).")
			return b.ask(ctx, s, notice, sb.String(), backOnly())
		}).
		On(stAdminCreditAmount, conversation.Text, backable(b.onAdminCreditAmount))
}

func (b *Bot) onAdminCreditAmount(ctx context.Context, s *session, ev event) (step, error) {
	delta, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
	if err != nil || delta == 0 {
		return conversation.Retry("⚠️ Please send a non-zero whole number."), nil
	}
	after, err := b.ledger.Adjust(ctx, s.Scratch.TargetID, delta, "")
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredit):
		return conversation.Retry("⚠️ The balance cannot go below zero."), nil
	case errors.Is(err, ledger.ErrInvalidAmount):
		return conversation.Retry("⚠️ Please send a non-zero whole number."), nil
	case errors.Is(err, ledger.ErrUserNotFound):
		return b.done(ctx, s, "❌ That user no longer exists.")
	case err != nil:
		return step{}, err
	}
	b.reply(ctx, s.ChatID, fmt.Sprintf("✅ Balance of <code>%d</code> is now <b>%d</b>.", s.Scratch.TargetID, after), nil)
	b.reply(ctx, s.Scratch.TargetID, fmt.Sprintf("💳 Your balance was adjusted by %+d. New balance: <b>%d</b>", delta, after), nil)
	return conversation.Parent(), nil
}

func (b *Bot) registerAdminPrice(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowAdminPrice, stAdminPriceSelect, stAdminPriceValue).
		Prompt(stAdminPriceSelect, b.promptPriceSelect).
		On(stAdminPriceSelect, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			key, ok := b.priceKey(ev.Text)
			if !ok {
				return conversation.Retry("⚠️ Please choose a service or plan from the list."), nil
			}
			s.Scratch.Key = key
			return conversation.Goto(stAdminPriceValue), nil
		})).
		Prompt(stAdminPriceValue, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, fmt.Sprintf("Send the new price for <b>%s</b>.", esc(s.Scratch.Key)), backOnly())
		}).
		On(stAdminPriceValue, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			price, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
			if err != nil {
				return conversation.Retry("⚠️ Please send a whole number."), nil
			}
			err = b.catalog.SetPrice(ctx, s.Scratch.Key, price)
			switch {
			case errors.Is(err, catalog.ErrInvalidPrice):
				return conversation.Retry("⚠️ The price cannot be negative."), nil
			case errors.Is(err, catalog.ErrUnknownKey):
				return b.done(ctx, s, "❌ That item is no longer in the catalog.")
			case err != nil:
				return step{}, err
			}
			return b.done(ctx, s, fmt.Sprintf("✅ Price of <b>%s</b> set to %d.", esc(s.Scratch.Key), price))
		}))
}

// priceKey resolves a service type first: a service price overrides the plan price.
func (b *Bot) priceKey(text string) (string, bool) {
	if o, ok := config.Match(b.catalog.ServiceTypes(), text); ok {
		return o.Key, true
	}
	if o, ok := config.Match(b.catalog.AccountTypes(), text); ok {
		return o.Key, true
	}
	return "", false
}

func (b *Bot) promptPriceSelect(ctx context.Context, s *session, notice string) error {
	lines, err := b.catalog.Prices(ctx)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("🏷 <b>Prices</b>")
	opts := make([]config.Option, 0, len(lines))
	for _, l := range lines {
		switch {
		case l.Live:
			fmt.Fprintf(&sb, "\n• %s (<code>%s</code>): %d", esc(l.Label), esc(l.Key), l.Price)
		case l.Set:
			fmt.Fprintf(&sb, "\n• %s (<code>%s</code>): %d (default)", esc(l.Label), esc(l.Key), l.Price)
		default:
			fmt.Fprintf(&sb, "\n• %s (<code>%s</code>): not set", esc(l.Label), esc(l.Key))
		}
		opts = append(opts, config.Option{Key: l.Key, Label: l.Label})
	}
	sb.WriteString("\n\nChoose the item to price.")
	return b.ask(ctx, s, notice, sb.String(), options(opts, lblBack))
}

func (b *Bot) registerAdminContent(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowAdminContent, stAdminContentSelect, stAdminContentKind, stAdminContentText, stAdminContentFile).
		Prompt(stAdminContentSelect, b.promptContentSelect).
		On(stAdminContentSelect, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			o, ok := config.Match(b.catalog.ServiceTypes(), ev.Text)
			if !ok {
				return conversation.Retry("⚠️ Please choose a service from the list."), nil
			}
			s.Scratch.Key = o.Key
			return conversation.Goto(stAdminContentKind), nil
		})).
		Prompt(stAdminContentKind, func(ctx context.Context, s *session, notice string) error {
			kb := ReplyKeyboard(Row(Key(lblTextKind), Key(lblFileKind)), Row(Key(lblRemove), Key(lblBack)))
			return b.ask(ctx, s, notice, fmt.Sprintf("What should <b>%s</b> deliver?", esc(s.Scratch.Key)), kb)
		}).
		On(stAdminContentKind, conversation.Text, backable(b.onContentKind)).
		Prompt(stAdminContentText, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, fmt.Sprintf("Send the text for <b>%s</b>, e.g. a connection link.", esc(s.Scratch.Key)), backOnly())
		}).
		On(stAdminContentText, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			return b.storeContent(ctx, s, strings.TrimSpace(ev.Text), false, "")
		})).
		Prompt(stAdminContentFile, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, fmt.Sprintf("Send the file for <b>%s</b> as a document.", esc(s.Scratch.Key)), backOnly())
		}).
		On(stAdminContentFile, conversation.Document, func(ctx context.Context, s *session, ev event) (step, error) {
			return b.storeContent(ctx, s, ev.FileID, true, ev.FileName)
		}).
		On(stAdminContentFile, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			return conversation.Retry("⚠️ Please send a file, not text."), nil
		}))
}

func (b *Bot) promptContentSelect(ctx context.Context, s *session, notice string) error {
	entries, err := b.catalog.ListContent(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]models.Service, len(entries))
	for _, e := range entries {
		have[e.Type] = e
	}
	var sb strings.Builder
	sb.WriteString("📂 <b>Content</b>")
	for _, o := range b.catalog.ServiceTypes() {
		e, ok := have[o.Key]
		switch {
		case !ok:
			fmt.Fprintf(&sb, "\n• %s: none", esc(o.Label))
		case e.IsFile:
			fmt.Fprintf(&sb, "\n• %s: file %s", esc(o.Label), esc(orDash(e.FileName)))
		default:
			fmt.Fprintf(&sb, "\n• %s: text", esc(o.Label))
		}
	}
	return b.ask(ctx, s, notice, sb.String(), options(b.catalog.ServiceTypes(), lblBack))
}

func (b *Bot) onContentKind(ctx context.Context, s *session, ev event) (step, error) {
	switch strings.TrimSpace(ev.Text) {
	case lblTextKind:
		return conversation.Goto(stAdminContentText), nil
	case lblFileKind:
		return conversation.Goto(stAdminContentFile), nil
	case lblRemove:
		err := b.catalog.DeleteContent(ctx, s.Scratch.Key)
		switch {
		case errors.Is(err, catalog.ErrContentMissing):
			b.reply(ctx, s.ChatID, "Nothing to remove.", nil)
		case err != nil:
			return step{}, err
		default:
			b.reply(ctx, s.ChatID, fmt.Sprintf("🗑 Content of <b>%s</b> removed.", esc(s.Scratch.Key)), nil)
		}
		return conversation.Parent(), nil
	}
	return conversation.Retry(msgUnmatched), nil
}

func (b *Bot) storeContent(ctx context.Context, s *session, content string, isFile bool, fileName string) (step, error) {
	err := b.catalog.SetContent(ctx, s.Scratch.Key, content, isFile, fileName)
	switch {
	case errors.Is(err, catalog.ErrEmptyContent):
		return conversation.Retry("⚠️ The content cannot be empty."), nil
	case errors.Is(err, catalog.ErrUnknownKey):
		return b.done(ctx, s, "❌ That service is no longer in the catalog.")
	case err != nil:
		return step{}, err
	}
	return b.done(ctx, s, fmt.Sprintf("✅ Content of <b>%s</b> saved.", esc(s.Scratch.Key)))
}

func (b *Bot) registerAdminCodes(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowAdminCodes, stAdminCodesMenu, stAdminCodeAdd, stAdminCodeDelete).
		Prompt(stAdminCodesMenu, b.promptCodes).
		On(stAdminCodesMenu, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			switch strings.TrimSpace(ev.Text) {
			case lblAdd:
				return conversation.Goto(stAdminCodeAdd), nil
			case lblDelete:
				return conversation.Goto(stAdminCodeDelete), nil
			}
			return b.showRedeemers(ctx, s, ev.Text)
		})).
		Prompt(stAdminCodeAdd, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "Send the new code and its value, e.g. <code>SAVE100 100</code>.", backOnly())
		}).
		On(stAdminCodeAdd, conversation.Text, backable(b.onCodeAdd)).
		Prompt(stAdminCodeDelete, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "Send the code to delete.", backOnly())
		}).
		On(stAdminCodeDelete, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			err := b.discounts.Delete(ctx, ev.Text)
			switch {
			case errors.Is(err, discount.ErrCodeNotFound):
				return conversation.Retry("❌ No such code."), nil
			case err != nil:
				return step{}, err
			}
			b.reply(ctx, s.ChatID, fmt.Sprintf("🗑 Code <code>%s</code> deleted.", esc(discount.Normalize(ev.Text))), nil)
			return conversation.Goto(stAdminCodesMenu), nil
		}))
}

func (b *Bot) promptCodes(ctx context.Context, s *session, notice string) error {
	codes, err := b.discounts.List(ctx)
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎟 <b>Discount codes</b> (%s use)", b.discounts.Policy())
	if len(codes) == 0 {
		sb.WriteString("\nNo codes yet.")
	}
	for _, c := range codes {
		fmt.Fprintf(&sb, "\n• <code>%s</code>: %d credits, used %d×", esc(c.Code), c.Value, c.UsageCount)
	}
	if len(codes) > 0 {
		sb.WriteString("\n\nSend a code to see who redeemed it.")
	}
	kb := ReplyKeyboard(Row(Key(lblAdd), Key(lblDelete)), Row(Key(lblBack)))
	return b.ask(ctx, s, notice, sb.String(), kb)
}

// showRedeemers lists who used a code when the admin sends its name in the codes menu.
func (b *Bot) showRedeemers(ctx context.Context, s *session, code string) (step, error) {
	dc, err := b.discounts.Get(ctx, code)
	if errors.Is(err, discount.ErrCodeNotFound) {
		return conversation.Retry(msgUnmatched), nil
	}
	if err != nil {
		return step{}, err
	}
	reds, err := b.discounts.Redemptions(ctx, dc.Code)
	if err != nil {
		return step{}, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎟 <code>%s</code> redeemed %d×", esc(dc.Code), len(reds))
	for i, r := range reds {
		if i == listLimit {
			fmt.Fprintf(&sb, "\n… and %d more", len(reds)-listLimit)
			break
		}
		fmt.Fprintf(&sb, "\n• <code>%d</code>: +%d on %s", r.UserID, r.Value, r.CreatedAt.Format("2006-01-02 15:04"))
	}
	b.reply(ctx, s.ChatID, sb.String(), nil)
	return conversation.Stay(), nil
}

func (b *Bot) onCodeAdd(ctx context.Context, s *session, ev event) (step, error) {
	fields := strings.Fields(ev.Text)
	if len(fields) != 2 {
		return conversation.Retry("⚠️ Send exactly a code and a value."), nil
	}
	value, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return conversation.Retry("⚠️ The value must be a whole number."), nil
	}
	dc, err := b.discounts.Create(ctx, fields[0], value)
	switch {
	case errors.Is(err, discount.ErrCodeExists):
		return conversation.Retry("⚠️ That code already exists."), nil
	case errors.Is(err, discount.ErrInvalidCode):
		return conversation.Retry("⚠️ The value must be positive."), nil
	case err != nil:
		return step{}, err
	}
	b.reply(ctx, s.ChatID, fmt.Sprintf("✅ Code <code>%s</code> created (%d credits).", esc(dc.Code), dc.Value), nil)
	return conversation.Goto(stAdminCodesMenu), nil
}

func (b *Bot) registerAdminBroadcast(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowAdminBroadcast, stAdminBroadcastText, stAdminBroadcastConfirm).
		Prompt(stAdminBroadcastText, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "📣 Send the message to broadcast to every user.", backOnly())
		}).
		On(stAdminBroadcastText, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			text := strings.TrimSpace(ev.Text)
			if text == "" {
				return conversation.Retry("⚠️ The message cannot be empty."), nil
			}
			s.Scratch.Text = text
			return conversation.Goto(stAdminBroadcastConfirm), nil
		})).
		Prompt(stAdminBroadcastConfirm, func(ctx context.Context, s *session, notice string) error {
			kb := ReplyKeyboard(Row(Key(lblConfirm), Key(lblBack)))
			return b.ask(ctx, s, notice, "Preview:\n\n"+esc(s.Scratch.Text)+"\n\nSend it to every user?", kb)
		}).
		On(stAdminBroadcastConfirm, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			if strings.TrimSpace(ev.Text) != lblConfirm {
				return conversation.Retry(msgUnmatched), nil
			}
			tally, err := b.bcast.Send(ctx, s.UserID, esc(s.Scratch.Text))
			if err != nil {
				return step{}, err
			}
			return b.done(ctx, s, fmt.Sprintf("📣 Broadcast finished: %d sent, %d failed.", tally.Sent, tally.Failed))
		}))
}

func (b *Bot) registerAdminSupport(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowAdminSupport, stAdminSupportSelect, stAdminSupportReply).
		Trigger(flowAdminSupport, conversation.CallbackPrefix(cbSupportReply)).
		Start(flowAdminSupport, func(ctx context.Context, s *session, ev event) (step, error) {
			if ev.Kind == conversation.Callback {
				return b.pickSupportMessage(ctx, s, strings.TrimPrefix(ev.Text, cbSupportReply))
			}
			return conversation.Goto(stAdminSupportSelect), nil
		}).
		Prompt(stAdminSupportSelect, b.promptSupportInbox).
		On(stAdminSupportSelect, conversation.Text, backable(func(ctx context.Context, s *session, ev event) (step, error) {
			return b.pickSupportMessage(ctx, s, strings.TrimPrefix(strings.TrimSpace(ev.Text), "#"))
		})).
		Prompt(stAdminSupportReply, func(ctx context.Context, s *session, notice string) error {
			msg, err := b.support.Get(ctx, s.Scratch.MessageID)
			if err != nil {
				return err
			}
			text := fmt.Sprintf("↩️ Write the reply to message #%d:\n<i>%s</i>", msg.ID, esc(msg.Text))
			return b.ask(ctx, s, notice, text, backOnly())
		}).
		On(stAdminSupportReply, conversation.Text, backable(b.onSupportReply))
}

func (b *Bot) promptSupportInbox(ctx context.Context, s *session, notice string) error {
	open, err := b.support.Open(ctx, listLimit)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return b.ask(ctx, s, notice, "📨 The support inbox is empty.", backOnly())
	}
	var sb strings.Builder
	sb.WriteString("📨 <b>Open support messages</b>")
	var rows [][]Button
	for _, m := range open {
		preview := []rune(m.Text)
		if len(preview) > 60 {
			preview = append(preview[:60], '…')
		}
		fmt.Fprintf(&sb, "\n#%d from <code>%d</code>: %s", m.ID, m.UserID, esc(string(preview)))
		id := strconv.FormatUint(uint64(m.ID), 10)
		rows = append(rows, Row(Data("↩️ #"+id, cbSupportReply+id)))
	}
	// inline buttons and the reply keyboard cannot share one message
	if err := b.msg.SendMessage(ctx, s.ChatID, sb.String(), InlineKeyboard(rows...)); err != nil {
		return err
	}
	return b.ask(ctx, s, notice, "Tap a message or send its number.", backOnly())
}

func (b *Bot) pickSupportMessage(ctx context.Context, s *session, raw string) (step, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return conversation.Retry("⚠️ Please send a message number."), nil
	}
	msg, err := b.support.Get(ctx, uint(id))
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		return conversation.Retry(fmt.Sprintf("❌ There is no message #%d.", id)), nil
	case err != nil:
		return step{}, err
	}
	if msg.IsAnswered {
		return conversation.Retry(fmt.Sprintf("ℹ️ Message #%d was already answered.", id)), nil
	}
	s.Scratch.MessageID = msg.ID
	return conversation.Goto(stAdminSupportReply), nil
}

func (b *Bot) onSupportReply(ctx context.Context, s *session, ev event) (step, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return conversation.Retry("⚠️ The reply cannot be empty."), nil
	}
	msg, err := b.support.Get(ctx, s.Scratch.MessageID)
	if err != nil {
		return step{}, err
	}
	err = b.support.MarkAnswered(ctx, msg.ID)
	switch {
	case errors.Is(err, services.ErrAlreadyAnswered):
		return b.done(ctx, s, fmt.Sprintf("ℹ️ Message #%d was answered in the meantime.", msg.ID))
	case err != nil:
		return step{}, err
	}
	if err := b.msg.SendMessage(ctx, msg.UserID, "📬 <b>Reply from support</b>\n\n"+esc(text), nil); err != nil {
		return b.done(ctx, s, fmt.Sprintf("⚠️ Message #%d is marked answered but the reply could not be delivered.", msg.ID))
	}
	return b.done(ctx, s, fmt.Sprintf("✅ Reply to #%d sent.", msg.ID))
}
