package ws

import (
	"encoding/json"
	"fmt"

	"github.com/pagepick/backend/internal/model"
)

// MessageType represents the type of a realtime frame.
type MessageType string

const (
	// Viewer -> relay
	MessageTypeSelectElement    MessageType = "SELECT_ELEMENT"
	MessageTypeHighlightElement MessageType = "HIGHLIGHT_ELEMENT"
	MessageTypePing             MessageType = "ping"

	// Relay -> viewer
	MessageTypeElementSelected    MessageType = "ELEMENT_SELECTED"
	MessageTypeElementHighlighted MessageType = "ELEMENT_HIGHLIGHTED"
	MessageTypePong               MessageType = "pong"
)

// Message is one JSON text frame.
type Message struct {
	Type       MessageType       `json:"type"`
	Selector   string            `json:"selector,omitempty"`
	Attributes []string          `json:"attributes,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
}

// relayed maps the type a viewer sends to the type other viewers receive.
var relayed = map[MessageType]MessageType{
	MessageTypeSelectElement:    MessageTypeElementSelected,
	MessageTypeHighlightElement: MessageTypeElementHighlighted,
}

// RelayedType returns the type the relay forwards t as.
func RelayedType(t MessageType) (MessageType, bool) {
	out, ok := relayed[t]
	return out, ok
}

// IsControl reports whether t is a keepalive frame.
func (t MessageType) IsControl() bool {
	return t == MessageTypePing || t == MessageTypePong
}

// decode parses raw and checks it against the set of types the receiving side
// accepts. Selection frames must carry a selector.
func decode(raw []byte, accept map[MessageType]bool) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedMessage, err)
	}
	if !accept[msg.Type] {
		return nil, fmt.Errorf("%w: unexpected type %q", model.ErrMalformedMessage, msg.Type)
	}
	if !msg.Type.IsControl() && msg.Selector == "" {
		return nil, fmt.Errorf("%w: %s without selector", model.ErrMalformedMessage, msg.Type)
	}
	return &msg, nil
}

var fromViewer = map[MessageType]bool{
	MessageTypeSelectElement:    true,
	MessageTypeHighlightElement: true,
	MessageTypePing:             true,
}

var fromRelay = map[MessageType]bool{
	MessageTypeElementSelected:    true,
	MessageTypeElementHighlighted: true,
	MessageTypePong:               true,
}

// DecodeViewerFrame parses a frame received by the relay.
func DecodeViewerFrame(raw []byte) (*Message, error) {
	return decode(raw, fromViewer)
}

// DecodeRelayFrame parses a frame received by a viewer.
func DecodeRelayFrame(raw []byte) (*Message, error) {
	return decode(raw, fromRelay)
}
