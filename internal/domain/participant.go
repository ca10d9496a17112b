// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxRoomIDLen      = 128
	MaxDisplayNameLen = 64
)

var (
	ErrRoomIDEmpty        = errors.New("room id empty")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrInvalidRole        = errors.New("invalid role")
)

// Role is the label a client declares at join. It is not authenticated.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDoctor, RolePatient:
		return Role(s), nil
	}
	return "", ErrInvalidRole
}

// Initiator reports whether peers with this role create offers.
// Exactly one role initiates; the other only answers.
func (r Role) Initiator() bool { return r == RoleDoctor }

// RosterEntry is the registry's view of a room member.
type RosterEntry struct {
	ConnectionID ConnID `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	Role         Role   `json:"role"`
}

// Participant is a room member as projected by a peer. Capability flags are
// inferred from observed toggle signals, never queried.
type Participant struct {
	RosterEntry
	IsMicOn         bool `json:"isMicOn"`
	IsVideoOn       bool `json:"isVideoOn"`
	IsScreenSharing bool `json:"isScreenSharing"`
	IsRecording     bool `json:"isRecording"`
}

// NewParticipant avoids raw literals and keeps the default flags in one place.
func NewParticipant(e RosterEntry) Participant {
	return Participant{RosterEntry: e, IsMicOn: true, IsVideoOn: true}
}
