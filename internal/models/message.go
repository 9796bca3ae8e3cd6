package models

// MessageType classifies a chat message. Opaque to the relay, passed through.
type MessageType string

const (
	MessageNormal MessageType = "normal"
	MessageOrder  MessageType = "order"
)

// ContentType describes the payload carried in a message body.
type ContentType string

const (
	ContentText ContentType = "text"
	ContentJPG  ContentType = "jpg"
	ContentPNG  ContentType = "png"
)

// MessageBody is the opaque payload: raw text or base64-encoded image data.
// The relay never inspects it beyond forwarding.
type MessageBody struct {
	ContentType ContentType `json:"content_type"`
	Content     string      `json:"content"`
}

// Message is the wire unit exchanged between merchants and the consumer
// backend. Each socket frame carries exactly one JSON-encoded Message; the
// same serialization travels over the broker. ToID is the routing key on
// the merchant-bound path.
type Message struct {
	ID        string      `json:"id,omitempty"` // ULID, assigned at enqueue if empty
	Type      MessageType `json:"message_type"`
	FromID    int64       `json:"from_id"`
	FromName  string      `json:"from_name,omitempty"`
	ToID      int64       `json:"to_id"`
	ToName    string      `json:"to_name,omitempty"`
	Body      MessageBody `json:"body"`
	Timestamp int64       `json:"timestamp"` // Unix ms, producer-set, not validated
}
