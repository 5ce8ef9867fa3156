package peer

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

// Data channel message types.
const (
	MessageTypeChat  = "chat"
	MessageTypeBye   = "bye"
	MessageTypeHello = "hello"
)

// MaxTextLength caps a single chat line, in runes.
const MaxTextLength = 2000

// Message is the envelope for everything sent over the chat data channel.
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// ChatMessage is one line of text typed by a participant.
type ChatMessage struct {
	Text   string `msgpack:"text"`
	SentAt int64  `msgpack:"sentAt"` // unix milliseconds
}

// Time returns when the message was sent.
func (m ChatMessage) Time() time.Time {
	return time.UnixMilli(m.SentAt)
}

// HelloPayload is exchanged once the channel opens.
type HelloPayload struct {
	Client  string `msgpack:"client"`
	Version string `msgpack:"version"`
}

// NewMessage creates a new Message with the given type and payload.
func NewMessage(t string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: b}, nil
}

// DecodePayload decodes the message payload into v.
func (m Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	return msgpack.Unmarshal(m.Payload, v)
}

// Encode serializes m for the wire.
func Encode(m Message) ([]byte, error) {
	return msgpack.Marshal(m)
}

// Decode parses a data channel frame.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("parse message: missing type")
	}
	return &m, nil
}

// NewChatMessage validates text and stamps it with now.
func NewChatMessage(text string, now time.Time) (ChatMessage, error) {
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return ChatMessage{}, ErrMessageTooLong
	}
	return ChatMessage{Text: text, SentAt: now.UnixMilli()}, nil
}
