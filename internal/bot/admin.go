package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lojf/storebot/internal/catalog"
	"github.com/lojf/storebot/internal/conversation"
	"github.com/lojf/storebot/internal/ledger"
	"github.com/lojf/storebot/internal/purchase"
	"github.com/lojf/storebot/internal/services"
)

// registerAdminActions wires the buttons of operator notifications. They work
// regardless of the admin's current flow.
func (b *Bot) registerAdminActions(m *conversation.Machine[Scratch]) {
	m.Action(conversation.CallbackPrefix(cbUserApprove), b.onApproveUser).
		Action(conversation.CallbackPrefix(cbUserReject), b.onRejectUser).
		Action(conversation.CallbackPrefix(cbReqCharge), func(ctx context.Context, ev event) error {
			return b.onApproveRequest(ctx, ev, cbReqCharge, true)
		}).
		Action(conversation.CallbackPrefix(cbReqFree), func(ctx context.Context, ev event) error {
			return b.onApproveRequest(ctx, ev, cbReqFree, false)
		}).
		Action(conversation.CallbackPrefix(cbReqReject), b.onRejectRequest)
}

// settle replaces an operator notification with its outcome, which also drops
// its buttons.
func (b *Bot) settle(ctx context.Context, ev event, text string) {
	if ev.MessageID != 0 {
		if err := b.msg.EditText(ctx, ev.ChatID, ev.MessageID, text); err == nil {
			return
		}
	}
	b.reply(ctx, ev.ChatID, text, nil)
}

func callbackUserID(ev event, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(ev.Text, prefix), 10, 64)
	return id, err == nil && id > 0
}

func callbackRequestID(ev event, prefix string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimPrefix(ev.Text, prefix), 10, 64)
	return uint(id), err == nil && id > 0
}

func (b *Bot) onApproveUser(ctx context.Context, ev event) error {
	id, ok := callbackUserID(ev, cbUserApprove)
	if !ok {
		b.reply(ctx, ev.ChatID, "⚠️ Malformed action.", nil)
		return nil
	}
	u, err := b.users.Approve(ctx, id)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		b.reply(ctx, ev.ChatID, fmt.Sprintf("❌ User %d not found.", id), nil)
		return nil
	case errors.Is(err, services.ErrAlreadyApproved):
		b.settle(ctx, ev, fmt.Sprintf("ℹ️ User <code>%d</code> is already approved.", id))
		return nil
	case errors.Is(err, services.ErrNotPending):
		b.settle(ctx, ev, fmt.Sprintf("ℹ️ User <code>%d</code> has no pending registration; it was already resolved.", id))
		return nil
	case err != nil:
		return err
	}
	b.settle(ctx, ev, fmt.Sprintf("✅ Approved %s (<code>%d</code>).", esc(u.DisplayName()), u.ID))
	b.reply(ctx, u.ID, "🎉 Your account has been approved! Welcome aboard.", b.menuFor(u.ID))
	return nil
}

func (b *Bot) onRejectUser(ctx context.Context, ev event) error {
	id, ok := callbackUserID(ev, cbUserReject)
	if !ok {
		b.reply(ctx, ev.ChatID, "⚠️ Malformed action.", nil)
		return nil
	}
	u, err := b.users.Reject(ctx, id)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		b.reply(ctx, ev.ChatID, fmt.Sprintf("❌ User %d not found.", id), nil)
		return nil
	case errors.Is(err, services.ErrAlreadyApproved), errors.Is(err, services.ErrNotPending):
		b.settle(ctx, ev, fmt.Sprintf("ℹ️ Registration of <code>%d</code> was already resolved.", id))
		return nil
	case err != nil:
		return err
	}
	b.settle(ctx, ev, fmt.Sprintf("❌ Rejected %s (<code>%d</code>).", esc(u.DisplayName()), u.ID))
	b.reply(ctx, u.ID, "❌ Your registration was not approved. Send /start to register again.", RemoveKeyboard())
	return nil
}

// requestDenial translates business failures of a resolution into an operator
// message. It returns "" for errors that are not business failures.
func requestDenial(id uint, err error) string {
	switch {
	case errors.Is(err, purchase.ErrRequestNotFound):
		return fmt.Sprintf("❌ Request #%d not found.", id)
	case errors.Is(err, purchase.ErrRequestResolved):
		return fmt.Sprintf("ℹ️ Request #%d was already resolved.", id)
	case errors.Is(err, ledger.ErrInsufficientCredit):
		return fmt.Sprintf("⚠️ The user's balance does not cover request #%d. Approve it free or reject it.", id)
	case errors.Is(err, catalog.ErrPriceUnset):
		return fmt.Sprintf("⚠️ No price is set for request #%d. Set one under %s or approve it free.", id, lblPrices)
	case errors.Is(err, purchase.ErrContentMissing):
		return fmt.Sprintf("⚠️ No content is configured for the service of request #%d. Add it under %s first.", id, lblContent)
	case errors.Is(err, ledger.ErrUserNotFound):
		return fmt.Sprintf("❌ The user of request #%d no longer exists.", id)
	}
	return ""
}

func (b *Bot) onApproveRequest(ctx context.Context, ev event, prefix string, deduct bool) error {
	id, ok := callbackRequestID(ev, prefix)
	if !ok {
		b.reply(ctx, ev.ChatID, "⚠️ Malformed action.", nil)
		return nil
	}
	res, err := b.purchases.Approve(ctx, id, deduct)
	if err != nil {
		msg := requestDenial(id, err)
		if msg == "" {
			return err
		}
		if errors.Is(err, purchase.ErrRequestResolved) {
			b.settle(ctx, ev, msg)
		} else {
			b.reply(ctx, ev.ChatID, msg, nil)
		}
		return nil
	}

	r := res.Request
	caption := fmt.Sprintf("✅ Your request #%d (%s · %s) was approved.", r.ID,
		esc(label(b.catalog.AccountTypes(), r.AccountType)), esc(label(b.catalog.ServiceTypes(), r.Service)))
	outcome := fmt.Sprintf("✅ Request #%d approved free of charge.", r.ID)
	if res.Charged > 0 {
		caption += fmt.Sprintf("\n%d credits were charged. Balance: %d", res.Charged, res.BalanceAfter)
		outcome = fmt.Sprintf("✅ Request #%d approved, %d credits charged.", r.ID, res.Charged)
	}
	if err := b.deliver(ctx, r.UserID, res.Content, caption); err != nil {
		b.log.Warn("content delivery failed", zap.Uint("request_id", r.ID), zap.Int64("user_id", r.UserID), zap.Error(err))
		outcome += "\n⚠️ Delivery to the user failed; send the content manually."
	}
	b.settle(ctx, ev, outcome)
	return nil
}

func (b *Bot) onRejectRequest(ctx context.Context, ev event) error {
	id, ok := callbackRequestID(ev, cbReqReject)
	if !ok {
		b.reply(ctx, ev.ChatID, "⚠️ Malformed action.", nil)
		return nil
	}
	r, err := b.purchases.Reject(ctx, id)
	if err != nil {
		msg := requestDenial(id, err)
		if msg == "" {
			return err
		}
		b.settle(ctx, ev, msg)
		return nil
	}
	b.settle(ctx, ev, fmt.Sprintf("❌ Request #%d rejected.", r.ID))
	b.reply(ctx, r.UserID, fmt.Sprintf("❌ Your request #%d was rejected. Contact support if you have questions.", r.ID), nil)
	return nil
}
