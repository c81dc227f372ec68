package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/conversation"
	"github.com/lojf/storebot/internal/models"
)

const timeFmt = "02 Jan 2006 15:04"

func (b *Bot) registerMenu(m *conversation.Machine[Scratch]) {
	m.Action(conversation.CommandIs("/start", "/menu"), b.start).
		Action(conversation.CommandIs("/help"), b.help).
		Action(conversation.Any(conversation.CommandIs("/balance", "/score"), conversation.TextIs(lblBalance)), b.showBalance).
		Action(conversation.Any(conversation.CommandIs("/myinfo", "/status"), conversation.TextIs(lblStatus)), b.showStatus).
		Action(conversation.Any(conversation.CommandIs("/requests"), conversation.TextIs(lblRequests)), b.showRequests)
}

// menuFor returns the main reply keyboard; admins get the panel button.
func (b *Bot) menuFor(userID int64) *Keyboard {
	kb := ReplyKeyboard(
		Row(Key(lblBuy), Key(lblBalance)),
		Row(Key(lblDiscount), Key(lblTransfer)),
		Row(Key(lblRequests), Key(lblStatus)),
		Row(Key(lblSupport), Key(lblGuide)),
	)
	if b.cfg.IsAdmin(userID) {
		kb.Rows = append(kb.Rows, Row(Key(lblAdmin)))
	}
	return kb
}

// showMenu answers with the main menu, or with no keyboard for users who
// cannot use it yet.
func (b *Bot) showMenu(ctx context.Context, ev event, text string) error {
	if !b.cfg.IsAdmin(ev.UserID) {
		u, err := b.users.Get(ctx, ev.UserID)
		if err != nil {
			return err
		}
		if !u.IsApproved {
			return b.msg.SendMessage(ctx, ev.ChatID, text+"\nSend any message to continue registration.", RemoveKeyboard())
		}
	}
	return b.msg.SendMessage(ctx, ev.ChatID, text, b.menuFor(ev.UserID))
}

// start drops any open flow and shows the menu.
func (b *Bot) start(ctx context.Context, ev event) error {
	if err := b.store.Delete(ctx, ev.UserID); err != nil {
		return err
	}
	u, err := b.users.Get(ctx, ev.UserID)
	if err != nil {
		return err
	}
	return b.showMenu(ctx, ev, fmt.Sprintf("👋 Hi <b>%s</b>! What would you like to do?", esc(u.DisplayName())))
}

func (b *Bot) help(ctx context.Context, ev event) error {
	text := "<b>Commands</b>\n" +
		"/buy - request a service account\n" +
		"/balance - credit balance and recent transfers\n" +
		"/redeem CODE - redeem a discount code\n" +
		"/transfer - send credit to another user\n" +
		"/requests - your purchase requests\n" +
		"/myinfo - your account\n" +
		"/support - contact support\n" +
		"/apps - client apps for your device\n" +
		"/cancel - abort the current step"
	if b.cfg.IsAdmin(ev.UserID) {
		text += "\n/admin - admin panel"
	}
	return b.msg.SendMessage(ctx, ev.ChatID, text, b.menuFor(ev.UserID))
}

func (b *Bot) showBalance(ctx context.Context, ev event) error {
	bal, err := b.ledger.Balance(ctx, ev.UserID)
	if err != nil {
		return err
	}
	transfers, err := b.ledger.Transfers(ctx, ev.UserID, 5)
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Balance: <b>%d</b> credits", bal)
	if len(transfers) > 0 {
		sb.WriteString("\n\n<b>Recent transfers</b>")
		for _, t := range transfers {
			if t.SenderID == ev.UserID {
				fmt.Fprintf(&sb, "\n↗️ -%d to <code>%d</code> · %s", t.Amount, t.ReceiverID, t.CreatedAt.Format(timeFmt))
			} else {
				fmt.Fprintf(&sb, "\n↘️ +%d from <code>%d</code> · %s", t.Amount, t.SenderID, t.CreatedAt.Format(timeFmt))
			}
		}
	}
	return b.msg.SendMessage(ctx, ev.ChatID, sb.String(), nil)
}

func (b *Bot) showStatus(ctx context.Context, ev event) error {
	u, err := b.users.Get(ctx, ev.UserID)
	if err != nil {
		return err
	}
	status := "✅ approved"
	if !u.IsApproved {
		status = "⏳ awaiting approval"
	}
	text := fmt.Sprintf("👤 <b>%s</b>\nID: <code>%d</code>\nPhone: %s\nSystem: %s\nStatus: %s\nCredit: %d\nMember since: %s",
		esc(u.DisplayName()), u.ID, esc(orDash(u.Phone)), esc(orDash(u.RequestedOS)), status, u.Credit,
		u.CreatedAt.Format("02 Jan 2006"))
	return b.msg.SendMessage(ctx, ev.ChatID, text, nil)
}

func (b *Bot) showRequests(ctx context.Context, ev event) error {
	reqs, err := b.purchases.ListByUser(ctx, ev.UserID, 10)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return b.msg.SendMessage(ctx, ev.ChatID, "You have no purchase requests yet.", nil)
	}
	var sb strings.Builder
	sb.WriteString("<b>Your requests</b>")
	for _, r := range reqs {
		fmt.Fprintf(&sb, "\n#%d %s · %s · %s", r.ID, esc(label(b.catalog.AccountTypes(), r.AccountType)),
			esc(label(b.catalog.ServiceTypes(), r.Service)), statusLabel(r))
	}
	return b.msg.SendMessage(ctx, ev.ChatID, sb.String(), nil)
}

func statusLabel(r models.PurchaseRequest) string {
	switch r.Status {
	case models.RequestApproved:
		if r.Charged {
			return fmt.Sprintf("✅ approved (-%d)", r.Price)
		}
		return "✅ approved"
	case models.RequestRejected:
		return "❌ rejected"
	}
	return "⏳ pending"
}

func label(opts []config.Option, key string) string {
	if o, ok := config.Find(opts, key); ok {
		return o.Label
	}
	return key
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
