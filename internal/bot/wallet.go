package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lojf/storebot/internal/conversation"
	"github.com/lojf/storebot/internal/discount"
	"github.com/lojf/storebot/internal/ledger"
	"github.com/lojf/storebot/internal/services"
)

func (b *Bot) registerWallet(m *conversation.Machine[Scratch]) {
	m.DefineFlow(flowDiscount, stEnteringDiscountCode).
		Trigger(flowDiscount, conversation.Any(conversation.CommandIs("/redeem", "/discount"), conversation.TextIs(lblDiscount))).
		Start(flowDiscount, b.startDiscount).
		Prompt(stEnteringDiscountCode, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "🎁 Send your discount code.", cancelOnly())
		}).
		On(stEnteringDiscountCode, conversation.Text, func(ctx context.Context, s *session, ev event) (step, error) {
			return b.redeem(ctx, s, ev.Text)
		})

	m.DefineFlow(flowTransfer, stTransferTarget, stTransferAmount).
		Trigger(flowTransfer, conversation.Any(conversation.CommandIs("/transfer"), conversation.TextIs(lblTransfer))).
		Prompt(stTransferTarget, func(ctx context.Context, s *session, notice string) error {
			return b.ask(ctx, s, notice, "🔁 Send the numeric user ID or the phone number of the recipient.\nThey can find their ID under "+lblStatus+".", cancelOnly())
		}).
		On(stTransferTarget, conversation.Text, b.onTransferTarget).
		Prompt(stTransferAmount, b.promptTransferAmount).
		On(stTransferAmount, conversation.Text, b.onTransferAmount)
}

// startDiscount redeems "/redeem CODE" right away.
func (b *Bot) startDiscount(ctx context.Context, s *session, ev event) (step, error) {
	if code := ev.CommandArgs(); code != "" {
		return b.redeem(ctx, s, code)
	}
	return conversation.Goto(stEnteringDiscountCode), nil
}

func (b *Bot) redeem(ctx context.Context, s *session, code string) (step, error) {
	granted, err := b.discounts.Redeem(ctx, code, s.UserID)
	switch {
	case errors.Is(err, discount.ErrCodeNotFound), errors.Is(err, discount.ErrInvalidCode):
		return conversation.Retry("❌ Code not found. Check it and try again."), nil
	case errors.Is(err, discount.ErrCodeAlreadyUsed):
		return b.finish(ctx, s, "⚠️ This code has already been used.")
	case err != nil:
		return step{}, err
	}
	bal, err := b.ledger.Balance(ctx, s.UserID)
	if err != nil {
		return step{}, err
	}
	return b.finish(ctx, s, fmt.Sprintf("✅ Code applied: +%d credits.\nBalance: <b>%d</b>", granted, bal))
}

func (b *Bot) onTransferTarget(ctx context.Context, s *session, ev event) (step, error) {
	id, miss, err := b.findUser(ctx, ev.Text)
	if err != nil {
		return step{}, err
	}
	if miss != "" {
		return conversation.Retry(miss), nil
	}
	if id == s.UserID {
		return conversation.Retry("⚠️ You cannot transfer credit to yourself."), nil
	}
	s.Scratch.TargetID = id
	return conversation.Goto(stTransferAmount), nil
}

// findUser resolves a numeric user ID or a registered phone number. miss is
// the notice to re-prompt with when nothing matches.
func (b *Bot) findUser(ctx context.Context, text string) (id int64, miss string, err error) {
	text = strings.TrimSpace(text)
	cc := b.cfg.DefaultCountryCode
	phoneLike := services.NormPhone(text, cc) != ""

	if n, ok := parseUserID(text); ok {
		exists, err := b.users.Exists(ctx, n)
		if err != nil {
			return 0, "", err
		}
		if exists {
			return n, "", nil
		}
		if !phoneLike {
			return 0, fmt.Sprintf("❌ There is no user with ID %d.", n), nil
		}
	} else if !phoneLike {
		return 0, "⚠️ Please send a numeric user ID or a phone number.", nil
	}

	u, err := b.users.FindByPhone(ctx, text, cc)
	if errors.Is(err, services.ErrUserNotFound) {
		return 0, "❌ No user is registered with that phone number.", nil
	}
	if err != nil {
		return 0, "", err
	}
	return u.ID, "", nil
}

func (b *Bot) promptTransferAmount(ctx context.Context, s *session, notice string) error {
	bal, err := b.ledger.Balance(ctx, s.UserID)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("How many credits do you want to send to <code>%d</code>?\nYour balance: <b>%d</b>", s.Scratch.TargetID, bal)
	return b.ask(ctx, s, notice, text, cancelOnly())
}

func (b *Bot) onTransferAmount(ctx context.Context, s *session, ev event) (step, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
	if err != nil || amount <= 0 {
		return conversation.Retry("⚠️ Please send a positive whole number."), nil
	}
	t, err := b.ledger.Transfer(ctx, s.UserID, s.Scratch.TargetID, amount)
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredit):
		bal, berr := b.ledger.Balance(ctx, s.UserID)
		if berr != nil {
			return step{}, berr
		}
		return b.finish(ctx, s, fmt.Sprintf("❌ Insufficient credit. Your balance is %d.", bal))
	case errors.Is(err, ledger.ErrUserNotFound):
		return b.finish(ctx, s, "❌ The recipient no longer exists.")
	case errors.Is(err, ledger.ErrSelfTransfer), errors.Is(err, ledger.ErrInvalidAmount):
		return conversation.Retry("⚠️ That transfer is not allowed."), nil
	case err != nil:
		return step{}, err
	}

	sender, err := b.users.Get(ctx, s.UserID)
	if err != nil {
		return step{}, err
	}
	b.reply(ctx, t.ReceiverID, fmt.Sprintf("💰 You received <b>%d</b> credits from %s.", t.Amount, esc(sender.DisplayName())), nil)
	return b.finish(ctx, s, fmt.Sprintf("✅ Sent %d credits to <code>%d</code>.\nBalance: <b>%d</b>", t.Amount, t.ReceiverID, sender.Credit))
}
