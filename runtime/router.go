package runtime

import (
	"chat-signal/contract"
	"chat-signal/domain"
	"chat-signal/domain/event"
	"chat-signal/moderation"
	"log/slog"
)

// Router turns a raw client frame into the event to deliver to the sender's room.
// Frames that can't be routed are dropped silently, nothing is ever sent back.
type Router struct {
	log    *slog.Logger
	censor contract.Censor
}

// NewRouter builds a router. A nil censor relays chat text untouched.
func NewRouter(log *slog.Logger, censor contract.Censor) *Router {
	return &Router{log: log, censor: censor}
}

func (r *Router) Route(sender domain.Participant, frame []byte) []event.Outbound {
	base := event.Outbound{Room: sender.RoomID, Sender: sender.UserID}

	switch in := domain.ParseInbound(frame).(type) {
	case domain.ChatRequest:
		base.Kind = event.ChatMessage
		base.Message = r.moderate(sender, in.Message)
	case domain.OfferRequest:
		base.Kind = event.SDPOffer
		base.SDP = in.SDP
	case domain.AnswerRequest:
		base.Kind = event.SDPAnswer
		base.SDP = in.SDP
		base.Receiver = in.Receiver
	case domain.CandidateRequest:
		base.Kind = event.ICECandidate
		base.Candidate = in.Candidate
	case domain.Ignored:
		r.log.Debug("Frame dropped",
			"room", sender.RoomID, "user", sender.UserID,
			"type", in.Type, "reason", in.Reason)
		return nil
	}
	return []event.Outbound{base}
}

func (r *Router) moderate(sender domain.Participant, message string) string {
	if r.censor == nil {
		return message
	}
	censored, words := r.censor.Censor(message)
	if len(words) > 0 {
		r.log.Warn("Message censored",
			"room", sender.RoomID, "user", sender.UserID,
			"words", len(words), "lang", moderation.Language(message))
	}
	return censored
}
