package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

type InboundType string

const (
	InboundChat         InboundType = "chat"
	InboundSDP          InboundType = "sdp"
	InboundICECandidate InboundType = "ice-candidate"

	sdpTypeOffer = "offer"
)

// Inbound is a client frame after classification. The set of implementations
// is closed: ChatRequest, OfferRequest, AnswerRequest, CandidateRequest and Ignored.
type Inbound interface {
	inbound()
}

// ChatRequest carries a chat text already trimmed and never empty.
type ChatRequest struct {
	Message string
}

// OfferRequest carries an SDP offer, broadcast to the room except its sender.
type OfferRequest struct {
	SDP json.RawMessage
}

// AnswerRequest carries any non-offer SDP, delivered to Receiver only.
type AnswerRequest struct {
	SDP      json.RawMessage
	Receiver UserID
}

// CandidateRequest carries an opaque ICE candidate. A null or absent candidate
// is still relayed.
type CandidateRequest struct {
	Candidate json.RawMessage
}

// Ignored is a frame dropped without any answer to the sender.
type Ignored struct {
	Type   string
	Reason string
}

func (ChatRequest) inbound()      {}
func (OfferRequest) inbound()     {}
func (AnswerRequest) inbound()    {}
func (CandidateRequest) inbound() {}
func (Ignored) inbound()          {}

// rawInbound keeps every field raw so a wrongly typed field only drops the
// frame instead of failing the whole decode.
type rawInbound struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message"`
	SDP       json.RawMessage `json:"sdp"`
	Receiver  json.RawMessage `json:"receiver"`
	Candidate json.RawMessage `json:"candidate"`
}

// ParseInbound classifies a client frame. Parsing is permissive: anything
// unknown, malformed or missing a required field becomes Ignored.
// A "sender" field in the frame is never read, the sender is always the
// authenticated connection.
func ParseInbound(data []byte) Inbound {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return Ignored{Reason: "malformed frame"}
	}

	switch InboundType(raw.Type) {
	case InboundChat:
		return parseChat(raw)
	case InboundSDP:
		return parseSDP(raw)
	case InboundICECandidate:
		return CandidateRequest{Candidate: raw.Candidate}
	default:
		return Ignored{Type: raw.Type, Reason: "unknown type"}
	}
}

func parseChat(raw rawInbound) Inbound {
	message, ok := decodeString(raw.Message)
	if !ok {
		return Ignored{Type: raw.Type, Reason: "message is not a string"}
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return Ignored{Type: raw.Type, Reason: "empty message"}
	}
	return ChatRequest{Message: message}
}

func parseSDP(raw rawInbound) Inbound {
	var fields map[string]json.RawMessage
	if isNull(raw.SDP) || json.Unmarshal(raw.SDP, &fields) != nil || len(fields) == 0 {
		return Ignored{Type: raw.Type, Reason: "sdp is missing"}
	}

	sdpType, _ := decodeString(fields["type"])
	if sdpType == sdpTypeOffer {
		return OfferRequest{SDP: raw.SDP}
	}

	receiver, _ := decodeString(raw.Receiver)
	if receiver == "" {
		return Ignored{Type: raw.Type, Reason: "answer without receiver"}
	}
	return AnswerRequest{SDP: raw.SDP, Receiver: UserID(receiver)}
}

func decodeString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
