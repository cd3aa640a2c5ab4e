package protocol

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"
)

// SignalKind labels a relayed negotiation payload for metrics. It never
// influences what is relayed.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalPranswer  SignalKind = "pranswer"
	SignalRollback  SignalKind = "rollback"
	SignalCandidate SignalKind = "candidate"
	SignalOther     SignalKind = "other"
	SignalEmpty     SignalKind = "empty"
)

func ClassifySignal(msg *SignalMessage) SignalKind {
	if len(msg.Description) > 0 {
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(msg.Description, &desc); err != nil {
			return SignalOther
		}
		switch desc.Type {
		case webrtc.SDPTypeOffer:
			return SignalOffer
		case webrtc.SDPTypeAnswer:
			return SignalAnswer
		case webrtc.SDPTypePranswer:
			return SignalPranswer
		case webrtc.SDPTypeRollback:
			return SignalRollback
		default:
			return SignalOther
		}
	}

	if len(msg.Candidate) > 0 {
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Candidate, &candidate); err != nil {
			return SignalOther
		}
		return SignalCandidate
	}

	return SignalEmpty
}
