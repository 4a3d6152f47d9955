package event

import (
	"chat-signal/domain"
	"encoding/json"
)

// Kind tags a routed event. Each kind has its own delivery rule.
type Kind string

const (
	ChatMessage  Kind = "chat.message"
	SDPOffer     Kind = "sdp.offer"
	SDPAnswer    Kind = "sdp.answer"
	ICECandidate Kind = "ice.candidate"
)

// Outbound is the routed form of an inbound frame, addressed to the whole room
// of its sender. Recipient filtering happens per recipient at delivery time.
type Outbound struct {
	Kind     Kind
	Room     domain.RoomID
	Sender   domain.UserID
	Receiver domain.UserID

	Message   string
	SDP       json.RawMessage
	Candidate json.RawMessage
}

func (o Outbound) RoomID() domain.RoomID {
	return o.Room
}

// For returns the payload recipient must receive, or false when the recipient
// is filtered out:
//   - chat reaches every member including the sender
//   - offers and candidates skip members sharing the sender's user id
//   - answers only reach the member whose user id is the receiver
func (o Outbound) For(recipient domain.UserID) (Delivery, bool) {
	switch o.Kind {
	case ChatMessage:
		return ChatDelivery{Message: o.Message}, true
	case SDPOffer:
		if recipient == o.Sender {
			return nil, false
		}
		return OfferDelivery{SDP: o.SDP, Sender: o.Sender, Receiver: recipient}, true
	case SDPAnswer:
		if recipient != o.Receiver {
			return nil, false
		}
		return AnswerDelivery{SDP: o.SDP, Sender: o.Sender}, true
	case ICECandidate:
		if recipient == o.Sender {
			return nil, false
		}
		return CandidateDelivery{Candidate: o.Candidate, Sender: o.Sender}, true
	default:
		return nil, false
	}
}

// Delivery is the JSON frame written to one recipient.
type Delivery interface {
	Kind() Kind
}

type ChatDelivery struct {
	Message string `json:"message"`
}

type OfferDelivery struct {
	SDP      json.RawMessage `json:"sdp"`
	Sender   domain.UserID   `json:"sender"`
	Receiver domain.UserID   `json:"receiver"`
}

type AnswerDelivery struct {
	SDP    json.RawMessage `json:"sdp"`
	Sender domain.UserID   `json:"sender"`
}

// CandidateDelivery marshals a nil Candidate as null.
type CandidateDelivery struct {
	Candidate json.RawMessage `json:"candidate"`
	Sender    domain.UserID   `json:"sender"`
}

func (ChatDelivery) Kind() Kind      { return ChatMessage }
func (OfferDelivery) Kind() Kind     { return SDPOffer }
func (AnswerDelivery) Kind() Kind    { return SDPAnswer }
func (CandidateDelivery) Kind() Kind { return ICECandidate }
