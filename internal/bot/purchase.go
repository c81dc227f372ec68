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
	"github.com/lojf/storebot/internal/purchase"
)

func (b *Bot) registerPurchase(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowPurchase, stSelectingAccountType, stSelectingDevice, stSelectingService).
		Trigger(flowPurchase, conversation.Any(conversation.CommandIs("/buy"), conversation.TextIs(lblBuy))).
		Prompt(stSelectingAccountType, b.promptAccountType).
		On(stSelectingAccountType, conversation.Text, b.onAccountType).
		Prompt(stSelectingDevice, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "📱 Which device will you connect from?", options(b.catalog.DeviceTypes()))
		}).
		On(stSelectingDevice, conversation.Text, b.onDevice).
		Prompt(stSelectingService, b.promptService).
		On(stSelectingService, conversation.Text, b.onService)
}

func (b *Bot) promptAccountType(ctx context.Context, s *session, notice string) error {
	var sb strings.Builder
	sb.WriteString("🛒 <b>Choose a plan</b>")
	for _, o := range b.catalog.AccountTypes() {
		if price, err := b.catalog.Price(ctx, "", o.Key); err == nil {
			fmt.Fprintf(&sb, "\n• %s: %d credits", esc(o.Label), price)
		} else {
			fmt.Fprintf(&sb, "\n• %s", esc(o.Label))
		}
	}
	return b.ask(ctx, s, notice, sb.String(), options(b.catalog.AccountTypes()))
}

func (b *Bot) onAccountType(ctx context.Context, s *session, ev event) (step, error) {
	opt, ok := config.Match(b.catalog.AccountTypes(), ev.Text)
	if !ok {
		return conversation.Retry("⚠️ Please choose one of the listed plans."), nil
	}
	s.Scratch.AccountType = opt.Key
	return conversation.Goto(stSelectingDevice), nil
}

func (b *Bot) onDevice(ctx context.Context, s *session, ev event) (step, error) {
	opt, ok := config.Match(b.catalog.DeviceTypes(), ev.Text)
	if !ok {
		return conversation.Retry("⚠️ Please choose one of the listed devices."), nil
	}
	s.Scratch.Device = opt.Key
	return conversation.Goto(stSelectingService), nil
}

func (b *Bot) promptService(ctx context.Context, s *session, notice string) error {
	var sb strings.Builder
	sb.WriteString("🔌 <b>Choose a service</b>")
	for _, o := range b.catalog.ServiceTypes() {
		price, err := b.catalog.Price(ctx, o.Key, s.Scratch.AccountType)
		switch {
		case err == nil:
			fmt.Fprintf(&sb, "\n• %s: %d credits", esc(o.Label), price)
		case errors.Is(err, catalog.ErrPriceUnset):
			fmt.Fprintf(&sb, "\n• %s: price on request", esc(o.Label))
		default:
			return err
		}
	}
	return b.ask(ctx, s, notice, sb.String(), options(b.catalog.ServiceTypes()))
}

func (b *Bot) onService(ctx context.Context, s *session, ev event) (step, error) {
	opt, ok := config.Match(b.catalog.ServiceTypes(), ev.Text)
	if !ok {
		return conversation.Retry("⚠️ Please choose one of the listed services."), nil
	}
	req, err := b.purchases.Create(ctx, s.UserID, s.Scratch.AccountType, s.Scratch.Device, opt.Key)
	switch {
	case errors.Is(err, purchase.ErrInvalidSelection):
		// catalog changed under the session
		return conversation.Retry("⚠️ That selection is no longer available."), nil
	case err != nil:
		return step{}, err
	}

	q, err := b.purchases.Quote(ctx, req.ID)
	if err != nil {
		return step{}, err
	}
	b.notifyAdmins(ctx, b.requestNotice(q), requestButtons(req.ID))
	return b.finish(ctx, s, fmt.Sprintf("✅ Request #%d submitted. You will be notified once an admin reviews it.", req.ID))
}

// requestNotice is the operator view of a pending request.
func (b *Bot) requestNotice(q purchase.Quote) string {
	r := q.Request
	price := "not set"
	if q.PriceSet {
		price = strconv.FormatInt(q.Price, 10)
		if !q.Covered {
			price += " (not covered)"
		}
	}
	device := "-"
	if r.Device != "" {
		device = label(b.catalog.DeviceTypes(), r.Device)
	}
	return fmt.Sprintf("🛒 <b>Purchase request #%d</b>\nUser: %s (<code>%d</code>)\nPlan: %s\nDevice: %s\nService: %s\nPrice: %s\nBalance: %d",
		r.ID, esc(q.User.DisplayName()), r.UserID,
		esc(label(b.catalog.AccountTypes(), r.AccountType)),
		esc(device),
		esc(label(b.catalog.ServiceTypes(), r.Service)),
		price, q.User.Credit)
}

func requestButtons(id uint) *Keyboard {
	s := strconv.FormatUint(uint64(id), 10)
	return InlineKeyboard(
		Row(Data("💳 Approve & charge", cbReqCharge+s), Data("🎁 Approve free", cbReqFree+s)),
		Row(Data("❌ Reject", cbReqReject+s)),
	)
}
