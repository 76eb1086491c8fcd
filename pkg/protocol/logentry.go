package protocol

import "time"

// Direction distinguishes inbound user messages from outbound bot replies.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// LogEntry is one line of the append-only message audit trail, tagged with
// the conversation state in effect when the message was produced.
type LogEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Direction Direction `json:"direction"`
	Body      string    `json:"body"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}
