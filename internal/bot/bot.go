package bot

import (
	"context"
	"html"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lojf/storebot/internal/broadcast"
	"github.com/lojf/storebot/internal/catalog"
	"github.com/lojf/storebot/internal/config"
	"github.com/lojf/storebot/internal/conversation"
	"github.com/lojf/storebot/internal/discount"
	"github.com/lojf/storebot/internal/ledger"
	"github.com/lojf/storebot/internal/metrics"
	"github.com/lojf/storebot/internal/purchase"
	"github.com/lojf/storebot/internal/services"
)

const (
	msgTryAgain     = "⚠️ Something went wrong. Please try again."
	msgAccessDenied = "⛔ Access denied."
	msgUnmatched    = "⚠️ Please use the options below."
	msgCancelled    = "❌ Cancelled."
)

// Deps are the collaborators of the bot. Locker is optional.
type Deps struct {
	Config    config.Config
	Messenger Messenger
	DB        *gorm.DB
	Users     *services.Users
	Support   *services.Support
	Ledger    *ledger.Ledger
	Discounts *discount.Service
	Catalog   *catalog.Catalog
	Purchases *purchase.Pipeline
	Broadcast *broadcast.Broadcaster
	Store     conversation.Store[Scratch]
	Locker    conversation.Locker
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

type Bot struct {
	cfg       config.Config
	msg       Messenger
	db        *gorm.DB
	users     *services.Users
	support   *services.Support
	ledger    *ledger.Ledger
	discounts *discount.Service
	catalog   *catalog.Catalog
	purchases *purchase.Pipeline
	bcast     *broadcast.Broadcaster
	store     conversation.Store[Scratch]
	log       *zap.Logger

	machine *conversation.Machine[Scratch]
}

// New wires every flow onto a conversation machine and validates it.
func New(d Deps) (*Bot, error) {
	b := &Bot{
		cfg:       d.Config,
		msg:       d.Messenger,
		db:        d.DB,
		users:     d.Users,
		support:   d.Support,
		ledger:    d.Ledger,
		discounts: d.Discounts,
		catalog:   d.Catalog,
		purchases: d.Purchases,
		bcast:     d.Broadcast,
		store:     d.Store,
		log:       d.Log.Named("bot"),
	}

	m := conversation.New(d.Store, d.Log, d.Metrics)
	if d.Locker != nil {
		m.WithLocker(d.Locker)
	}
	m.Gate(b.gate).
		CancelWhen(conversation.Any(conversation.DefaultCancel, conversation.TextIs(lblCancel))).
		OnCancel(b.onCancel).
		OnFailure(b.onFailure).
		Fallback(b.fallback).
		UnmatchedNotice(msgUnmatched)

	// denial goes first so admin entry points never reach a flow for other users
	m.Action(func(ev event) bool { return adminOnly(ev) && !b.cfg.IsAdmin(ev.UserID) }, b.denied)

	b.registerAdminActions(m)
	b.registerMenu(m)
	b.registerRegistration(m)
	b.registerPurchase(m)
	b.registerWallet(m)
	b.registerSupport(m)
	b.registerAdmin(m)

	if err := m.Build(); err != nil {
		return nil, err
	}
	b.machine = m
	return b, nil
}

// Handle processes one Bot API update. It never returns an error: failures are
// logged and answered with a generic reply.
func (b *Bot) Handle(ctx context.Context, u *Update) {
	ev, who, ok := toEvent(u)
	if !ok {
		return
	}
	if _, _, err := b.users.EnsureUser(ctx, who); err != nil {
		b.log.Error("ensure user", zap.Int64("user_id", who.ID), zap.Error(err))
		b.reply(ctx, ev.ChatID, msgTryAgain, nil)
	} else {
		b.machine.Dispatch(ctx, ev)
	}
	if ev.Kind == conversation.Callback {
		if err := b.msg.AnswerCallback(ctx, ev.CallbackID, ""); err != nil {
			b.log.Debug("answer callback", zap.Error(err))
		}
	}
}

// toEvent converts an update from a private chat.
func toEvent(u *Update) (event, services.Identity, bool) {
	var ev event
	switch {
	case u == nil:
		return ev, services.Identity{}, false

	case u.Callback != nil:
		cb := u.Callback
		if cb.From == nil {
			return ev, services.Identity{}, false
		}
		ev = event{
			Kind:       conversation.Callback,
			UserID:     cb.From.ID,
			ChatID:     cb.From.ID,
			Text:       cb.Data,
			CallbackID: cb.ID,
		}
		if cb.Message != nil && cb.Message.Chat != nil {
			ev.ChatID = cb.Message.Chat.ID
			ev.MessageID = cb.Message.MessageID
		}
		return ev, identity(cb.From), true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil {
			return ev, services.Identity{}, false
		}
		if m.Chat.Type != "" && m.Chat.Type != "private" {
			return ev, services.Identity{}, false
		}
		ev = event{UserID: m.From.ID, ChatID: m.Chat.ID, MessageID: m.MessageID}
		switch {
		case m.Contact != nil:
			ev.Kind = conversation.Contact
			ev.Phone = m.Contact.PhoneNumber
			ev.ContactUserID = m.Contact.UserID
		case m.Document != nil:
			ev.Kind = conversation.Document
			ev.FileID = m.Document.FileID
			ev.FileName = m.Document.FileName
			ev.Text = m.Caption
		case strings.HasPrefix(strings.TrimSpace(m.Text), "/"):
			ev.Kind = conversation.Command
			ev.Text = strings.TrimSpace(m.Text)
		default:
			// stickers, photos and the like arrive as empty text and get re-prompted
			ev.Kind = conversation.Text
			ev.Text = m.Text
		}
		return ev, identity(m.From), true
	}
	return ev, services.Identity{}, false
}

func identity(u *User) services.Identity {
	return services.Identity{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

// adminOnly matches every admin entry point.
func adminOnly(ev event) bool {
	switch ev.Kind {
	case conversation.Command:
		return ev.CommandName() == "/admin"
	case conversation.Text:
		return strings.TrimSpace(ev.Text) == lblAdmin
	case conversation.Callback:
		for _, p := range []string{"usr:", "req:", cbSupportReply} {
			if strings.HasPrefix(ev.Text, p) {
				return true
			}
		}
	}
	return false
}

// gate sends unapproved users into registration. Admins are never gated.
func (b *Bot) gate(ctx context.Context, ev event) (conversation.Flow, error) {
	if b.cfg.IsAdmin(ev.UserID) || adminOnly(ev) {
		return "", nil
	}
	u, err := b.users.Get(ctx, ev.UserID)
	if err != nil {
		return "", err
	}
	if u.IsApproved {
		return "", nil
	}
	return flowRegistration, nil
}

func (b *Bot) denied(ctx context.Context, ev event) error {
	b.reply(ctx, ev.ChatID, msgAccessDenied, nil)
	return nil
}

func (b *Bot) onCancel(ctx context.Context, ev event, hadSession bool) error {
	if !hadSession {
		return b.showMenu(ctx, ev, "Nothing to cancel.")
	}
	return b.showMenu(ctx, ev, msgCancelled)
}

func (b *Bot) onFailure(ctx context.Context, ev event) error {
	return b.msg.SendMessage(ctx, ev.ChatID, msgTryAgain, nil)
}

func (b *Bot) fallback(ctx context.Context, ev event) error {
	return b.showMenu(ctx, ev, "Choose an option from the menu.")
}

// reply sends a message whose failure is only logged.
func (b *Bot) reply(ctx context.Context, chatID int64, text string, kb *Keyboard) {
	if err := b.msg.SendMessage(ctx, chatID, text, kb); err != nil {
		b.log.Warn("send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// ask renders a state prompt, prefixed with a retry notice when there is one.
func (b *Bot) ask(ctx context.Context, s *session, notice, text string, kb *Keyboard) error {
	if notice != "" {
		text = notice + "\n\n" + text
	}
	return b.msg.SendMessage(ctx, s.ChatID, text, kb)
}

func (b *Bot) notifyAdmins(ctx context.Context, text string, kb *Keyboard) {
	for _, id := range b.cfg.AdminIDs {
		b.reply(ctx, id, text, kb)
	}
}

// finish tells the user how the flow ended and puts the main menu back.
func (b *Bot) finish(ctx context.Context, s *session, text string) (step, error) {
	b.reply(ctx, s.ChatID, text, b.menuFor(s.UserID))
	return conversation.End(), nil
}

func esc(s string) string { return html.EscapeString(s) }

// options renders choices two per row with a trailing cancel row.
func options(opts []config.Option, last ...string) *Keyboard {
	var rows [][]Button
	var row []Button
	for _, o := range opts {
		row = append(row, Key(o.Label))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	if len(last) == 0 {
		last = []string{lblCancel}
	}
	var tail []Button
	for _, l := range last {
		tail = append(tail, Key(l))
	}
	rows = append(rows, tail)
	return ReplyKeyboard(rows...)
}

func cancelOnly() *Keyboard { return ReplyKeyboard(Row(Key(lblCancel))) }

func backOnly() *Keyboard { return ReplyKeyboard(Row(Key(lblBack))) }

func isBack(ev event) bool {
	return ev.Kind == conversation.Text && strings.TrimSpace(ev.Text) == lblBack
}
