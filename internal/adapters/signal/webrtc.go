package signal

import (
	"encoding/json"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/observability"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type negotiationPayload struct {
	To        string          `json:"to" validate:"required"`
	Offer     json.RawMessage `json:"offer"`
	Answer    json.RawMessage `json:"answer"`
	Candidate json.RawMessage `json:"candidate"`
}

// handleNegotiation relays offer, answer and ICE payloads to the named
// peer. The payload is only checked for shape and forwarded as received.
func (ctl *SignalWSController) handleNegotiation(c *WsSignalConn, kind core.Kind, data []byte) {
	var p negotiationPayload
	if !ctl.decode(c, kind, data, &p) {
		return
	}

	out := core.Negotiation{Type: kind, From: string(c.identity)}
	var ok bool
	switch kind {
	case core.KindWebRTCOffer:
		ok = validSessionDescription(p.Offer, webrtc.SDPTypeOffer)
		out.Offer = p.Offer
	case core.KindWebRTCAnswer:
		ok = validSessionDescription(p.Answer, webrtc.SDPTypeAnswer)
		out.Answer = p.Answer
	case core.KindWebRTCCandidate:
		ok = validCandidate(p.Candidate)
		out.Candidate = p.Candidate
	}
	if !ok {
		log.Warn().Str("module", "signal").Str("username", string(c.identity)).Str("type", string(kind)).Msg("bad negotiation payload")
		observability.RecordEvent(string(kind), "malformed")
		return
	}

	if !ctl.Orch.Router.DirectSend(domain.Identity(p.To), out) {
		observability.RecordEvent(string(kind), "dropped")
		return
	}
	observability.RecordEvent(string(kind), "ok")
}

// validSessionDescription accepts a description whose type is absent or
// matches want and which carries an SDP body.
func validSessionDescription(raw json.RawMessage, want webrtc.SDPType) bool {
	if len(raw) == 0 {
		return false
	}
	var sd webrtc.SessionDescription
	if err := json.Unmarshal(raw, &sd); err != nil {
		return false
	}
	if sd.SDP == "" {
		return false
	}
	return sd.Type == want || sd.Type == webrtc.SDPType(0)
}

// validCandidate accepts an RTCIceCandidateInit object. An empty candidate
// string is the end-of-candidates marker and is relayed too.
func validCandidate(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var ci webrtc.ICECandidateInit
	return json.Unmarshal(raw, &ci) == nil
}
