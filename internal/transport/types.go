package transport

import "context"

// Recipient addresses one player on the outbound channel. ID is the same
// normalized identity the scheduling engine derives job ids from.
type Recipient struct {
	ID string
}

// Update is an inbound free-text message from a player.
type Update struct {
	From Recipient
	Text string
}

// Adapter is the messaging channel boundary. Implementations deliver text to
// a recipient and surface inbound messages on the channel passed to Start.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to Recipient, text string) error
}
