package domain

// MessageType classifies messages sent by the presentation.
type MessageType string

const (
	// MessagePresentationStateComplete reports that a presentation state finished.
	MessagePresentationStateComplete MessageType = "PresentationStateComplete"
	// MessageNegotiateData asks the game logic for named values.
	MessageNegotiateData MessageType = "NegotiateData"
)

// Navigation actions accepted while replaying history.
const (
	ActionNextStep  = "NextStep"
	ActionFirstStep = "FirstStep"
)

// PresentationMessage is an inbound message from the presentation.
type PresentationMessage struct {
	Type MessageType `json:"type"`

	// Action is set on PresentationStateComplete (e.g. ActionNextStep).
	Action string `json:"action,omitempty"`

	// RequiredFields is set on NegotiateData, as provider/service names.
	RequiredFields []string `json:"required_fields,omitempty"`
}

// Is reports whether the message type is one of the given types.
// An empty list matches every message.
func (m PresentationMessage) Is(types ...MessageType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if m.Type == t {
			return true
		}
	}
	return false
}

// HostEvent is an inbound event from the host platform.
type HostEvent struct {
	Name    string `json:"name"`
	Payload []byte `json:"payload,omitempty"`

	// Transactional events are dispatched to handlers inside their own transaction.
	Transactional bool `json:"transactional"`
}
