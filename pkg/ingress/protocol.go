package ingress

type Op string

const (
	// client -> server
	HelloOp   Op = "hello"
	CommandOp Op = "command"

	// server -> client
	WelcomeOp Op = "welcome"
	ReplyOp   Op = "reply"
	ErrorOp   Op = "error"
	EventOp   Op = "event"
)

// Message is the single CBOR frame exchanged over the websocket.
type Message struct {
	Op Op
	// Echoed back on the reply to a command
	Id     int    `cbor:",omitempty"`
	Player string `cbor:",omitempty"`
	// Sent with hello; proves which player the client speaks for
	Token    string `cbor:",omitempty"`
	Nickname string `cbor:",omitempty"`
	Text     string `cbor:",omitempty"`
	Room     string `cbor:",omitempty"`
}
