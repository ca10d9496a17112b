package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownSignal   = errors.New("unknown signal type")
	ErrMalformedSignal = errors.New("malformed signal")
)

type SignalType string

const (
	SignalOffer             SignalType = "offer"
	SignalAnswer            SignalType = "answer"
	SignalCandidate         SignalType = "candidate"
	SignalMediaToggle       SignalType = "media-toggle"
	SignalScreenShareToggle SignalType = "screen-share-toggle"
	SignalRecordToggle      SignalType = "record-toggle"
)

// Signal is one variant of the peer-to-peer signaling payload.
type Signal interface {
	SignalType() SignalType
}

type Offer struct {
	SDP string `json:"sdp"`
}

type Answer struct {
	SDP string `json:"sdp"`
}

type Candidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type MediaToggle struct {
	AudioEnabled bool `json:"audioEnabled"`
	VideoEnabled bool `json:"videoEnabled"`
}

type ScreenShareToggle struct {
	IsScreenSharing bool `json:"isScreenSharing"`
}

type RecordToggle struct {
	IsRecording bool `json:"isRecording"`
}

func (Offer) SignalType() SignalType             { return SignalOffer }
func (Answer) SignalType() SignalType            { return SignalAnswer }
func (Candidate) SignalType() SignalType         { return SignalCandidate }
func (MediaToggle) SignalType() SignalType       { return SignalMediaToggle }
func (ScreenShareToggle) SignalType() SignalType { return SignalScreenShareToggle }
func (RecordToggle) SignalType() SignalType      { return SignalRecordToggle }

// SignalEnvelope is the tagged union carried inside signal messages.
// An empty TargetID addresses every other member of the room.
type SignalEnvelope struct {
	TargetID ConnID
	Signal   Signal
}

type signalHead struct {
	Type     SignalType `json:"type"`
	TargetID ConnID     `json:"targetId,omitempty"`
}

func (e SignalEnvelope) MarshalJSON() ([]byte, error) {
	if e.Signal == nil {
		return nil, ErrMalformedSignal
	}
	body, err := json.Marshal(e.Signal)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["type"], _ = json.Marshal(e.Signal.SignalType())
	if e.TargetID != "" {
		fields["targetId"], _ = json.Marshal(e.TargetID)
	}
	return json.Marshal(fields)
}

func (e *SignalEnvelope) UnmarshalJSON(data []byte) error {
	var head signalHead
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	var sig Signal
	switch head.Type {
	case SignalOffer:
		var v Offer
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		if v.SDP == "" {
			return fmt.Errorf("%w: offer without sdp", ErrMalformedSignal)
		}
		sig = v
	case SignalAnswer:
		var v Answer
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		if v.SDP == "" {
			return fmt.Errorf("%w: answer without sdp", ErrMalformedSignal)
		}
		sig = v
	case SignalCandidate:
		var v Candidate
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		sig = v
	case SignalMediaToggle:
		var v MediaToggle
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		sig = v
	case SignalScreenShareToggle:
		var v ScreenShareToggle
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		sig = v
	case SignalRecordToggle:
		var v RecordToggle
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		sig = v
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSignal, head.Type)
	}
	e.TargetID = head.TargetID
	e.Signal = sig
	return nil
}

// DecodeSignal parses an opaque relayed payload.
func DecodeSignal(raw []byte) (SignalEnvelope, error) {
	var env SignalEnvelope
	err := json.Unmarshal(raw, &env)
	return env, err
}
