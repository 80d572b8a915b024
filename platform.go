package fleet

import "context"

// Message is one inbound platform message. Text is empty for updates that
// carry no text payload (stickers, photos, joins); workers ignore those.
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
}

// Session is a live platform connection for one bot token.
type Session interface {
	// Updates returns the inbound message stream. The channel is closed
	// when the session dies or Close is called.
	Updates() <-chan Message

	// Reply sends text in response to msg.
	Reply(ctx context.Context, msg Message, text string) error

	// Close tears the session down. Safe to call more than once.
	Close()
}

// Connector establishes platform sessions from credential tokens.
type Connector interface {
	Connect(token string) (Session, error)
}
