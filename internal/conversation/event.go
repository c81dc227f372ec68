package conversation

import "strings"

// EventKind is the shape of an inbound event. States accept input per kind.
type EventKind int

const (
	Text EventKind = iota + 1
	Contact
	Callback
	Document
	Command
)

var kindNames = map[EventKind]string{
	Text:     "text",
	Contact:  "contact",
	Callback: "callback",
	Document: "document",
	Command:  "command",
}

func (k EventKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

func (k EventKind) valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Event is one transport-neutral inbound interaction.
type Event struct {
	Kind      EventKind
	UserID    int64
	ChatID    int64
	MessageID int64

	// Text carries the message body, the full command line or the callback data.
	Text       string
	CallbackID string

	// Contact
	Phone         string
	ContactUserID int64

	// Document
	FileID   string
	FileName string
}

// CommandName returns "/start" for "/start@storebot arg".
func (e Event) CommandName() string {
	if e.Kind != Command {
		return ""
	}
	name, _, _ := strings.Cut(strings.TrimSpace(e.Text), " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}

// CommandArgs returns everything after the command name.
func (e Event) CommandArgs() string {
	if e.Kind != Command {
		return ""
	}
	_, args, _ := strings.Cut(strings.TrimSpace(e.Text), " ")
	return strings.TrimSpace(args)
}

// OwnContact reports whether a shared contact belongs to the sender. Cards
// without a Telegram account carry ContactUserID 0 and never match.
func (e Event) OwnContact() bool {
	return e.Kind == Contact && e.UserID != 0 && e.ContactUserID == e.UserID
}
